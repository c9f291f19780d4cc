package printout

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	cmdInit        = []byte{0x1B, 0x40}       // ESC @
	cmdChineseMode = []byte{0x1C, 0x26}       // FS &
	cmdFeed        = []byte{0x1B, 0x64, 0x03} // ESC d 3
	cmdPartialCut  = []byte{0x1D, 0x56, 0x01} // GS V 1
)

// Encode renders doc as an ESC/POS job with GB18030 text.
func Encode(doc *Document) ([]byte, error) {
	text, err := simplifiedchinese.GB18030.NewEncoder().String(doc.Text())
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt text: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(text) + 16)
	buf.Write(cmdInit)
	buf.Write(cmdChineseMode)
	buf.WriteString(text)
	buf.Write(cmdFeed)
	buf.Write(cmdPartialCut)
	return buf.Bytes(), nil
}

// Decode extracts the text of a job produced by Encode. It is used to show
// simulated receipts.
func Decode(job []byte) (string, error) {
	body := bytes.TrimPrefix(job, cmdInit)
	body = bytes.TrimPrefix(body, cmdChineseMode)
	body = bytes.TrimSuffix(body, cmdPartialCut)
	body = bytes.TrimSuffix(body, cmdFeed)
	text, err := simplifiedchinese.GB18030.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode receipt text: %w", err)
	}
	return string(text), nil
}
