// Package brcode builds static PIX "copy and paste" payloads in the EMV
// merchant-presented QR format.
package brcode

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	pixGUI        = "br.gov.bcb.pix"
	currencyBRL   = "986"
	maxNameLen    = 25
	maxCityLen    = 15
	maxTxIDLen    = 25
	crcFieldStart = "6304"
)

// Static describes a static charge payload.
type Static struct {
	Key          string
	MerchantName string
	MerchantCity string
	Amount       decimal.Decimal
	TxID         string
}

// Payload renders s with its trailing CRC16 field.
func (s Static) Payload() string {
	account := field("00", pixGUI) + field("01", s.Key)

	var b strings.Builder
	b.WriteString(field("00", "01"))
	b.WriteString(field("26", account))
	b.WriteString(field("52", "0000"))
	b.WriteString(field("53", currencyBRL))
	if s.Amount.IsPositive() {
		b.WriteString(field("54", s.Amount.StringFixed(2)))
	}
	b.WriteString(field("58", "BR"))
	b.WriteString(field("59", clean(s.MerchantName, maxNameLen)))
	b.WriteString(field("60", clean(s.MerchantCity, maxCityLen)))

	txid := clean(s.TxID, maxTxIDLen)
	if txid == "" {
		txid = "***"
	}
	b.WriteString(field("62", field("05", txid)))
	b.WriteString(crcFieldStart)

	payload := b.String()
	return payload + fmt.Sprintf("%04X", CRC16(payload))
}

// CRC16 is CRC-16/CCITT-FALSE, the checksum EMV QR codes carry in field 63.
func CRC16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// clean keeps printable ASCII and cuts to max bytes.
func clean(s string, max int) string {
	out := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if len(out) > max {
		out = out[:max]
	}
	return out
}
