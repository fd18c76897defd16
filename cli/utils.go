package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// printf prints a message with a newline to w.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

var warningColor = color.New(color.FgYellow, color.Bold)

// warningf prints a message prefixed with a highlighted "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	warningColor.Fprint(w, "Warning: ")
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// hexdump formats data in rows of 16 bytes, each prefixed by its address.
func hexdump(w io.Writer, addr uint32, data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		printf(w, "%08X  % X", addr+uint32(off), data[off:end])
	}
}
