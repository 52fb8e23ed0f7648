package gpsbuddy

import (
	"bytes"
	"encoding/xml"
	"sort"
)

// buildRoutineXML serializes a function name and its argument map into the
// nested-tag payload the ExecuteReturnSet endpoint expects. Parameters are
// emitted in sorted key order so payloads are stable.
func buildRoutineXML(function string, args map[string]string) string {
	var buf bytes.Buffer
	buf.WriteString("<routine><name>")
	xmlEscape(&buf, function)
	buf.WriteString("</name><parameters>")

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		buf.WriteString("<parameter><name>")
		xmlEscape(&buf, k)
		buf.WriteString("</name><value>")
		xmlEscape(&buf, args[k])
		buf.WriteString("</value></parameter>")
	}
	buf.WriteString("</parameters></routine>")
	return buf.String()
}

func xmlEscape(buf *bytes.Buffer, s string) {
	// EscapeText only fails on a failing writer; bytes.Buffer never does.
	_ = xml.EscapeText(buf, []byte(s))
}
