package capture

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Input formats accepted by Open.
const (
	FormatAuto  = "auto"
	FormatNgrep = "ngrep"
	FormatPcap  = "pcap"
)

var pcapMagics = [][]byte{
	{0xa1, 0xb2, 0xc3, 0xd4},
	{0xd4, 0xc3, 0xb2, 0xa1},
	{0xa1, 0xb2, 0x3c, 0x4d},
	{0x4d, 0x3c, 0xb2, 0xa1},
	pcapngMagic,
}

// Open opens an offline source and returns it with its metrics label.
// FormatAuto sniffs the file for a pcap or pcapng magic number and falls
// back to ngrep text. "-" always reads ngrep text from standard input.
func Open(path, format string) (Source, string, error) {
	if path == "-" {
		format = FormatNgrep
	}
	if format == "" || format == FormatAuto {
		var err error
		if format, err = sniff(path); err != nil {
			return nil, "", err
		}
	}

	switch format {
	case FormatNgrep:
		src, err := OpenText(path)
		if err != nil {
			return nil, "", err
		}
		return src, sourceNgrep, nil
	case FormatPcap:
		src, err := OpenFile(path)
		if err != nil {
			return nil, "", err
		}
		return src, sourceFile, nil
	default:
		return nil, "", fmt.Errorf("capture: unknown input format %q", format)
	}
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("capture: open %q: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		// too short for a capture file
		return FormatNgrep, nil
	}
	for _, m := range pcapMagics {
		if bytes.Equal(head, m) {
			return FormatPcap, nil
		}
	}
	return FormatNgrep, nil
}
