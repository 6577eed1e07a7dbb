// Package capture feeds SIP records into the call store.
//
// A Source yields Records: an ngrep style header line plus the raw SIP
// payload. Sources exist for ngrep byline text, pcap/pcapng files and live
// interfaces (libpcap everywhere, AF_PACKET on Linux). Ingest drains a
// source into anything that accepts messages.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"firestige.xyz/sipflow/internal/metrics"
	"firestige.xyz/sipflow/internal/sip"
)

// Record is one captured SIP message.
type Record struct {
	Header  string // U <date> <time> <src> -> <dst>
	Payload string
}

// Source produces records. Next returns io.EOF once the source is drained.
type Source interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Acceptor takes ownership of captured messages.
type Acceptor interface {
	AcceptMessage(header, payload string) (*sip.Message, error)
}

var _ Acceptor = (*sip.Store)(nil)

// Stats summarizes one Ingest run.
type Stats struct {
	Records  int
	Accepted int
	Rejected int
}

// FormatHeader builds a record header.
func FormatHeader(ts time.Time, src, dst string) string {
	return fmt.Sprintf("U %s %s -> %s", ts.In(time.Local).Format(sip.HeaderTimeLayout), src, dst)
}

// Ingest reads src until it is drained or ctx is done and hands every record
// to acc. Rejected records are logged and counted, never fatal. A drained
// source returns a nil error.
func Ingest(ctx context.Context, name string, src Source, acc Acceptor) (Stats, error) {
	var st Stats
	logger := slog.With("source", name)
	records := metrics.CaptureRecordsTotal.WithLabelValues(name)

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		rec, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("capture source drained",
					"records", st.Records, "accepted", st.Accepted, "rejected", st.Rejected)
				return st, nil
			}
			return st, fmt.Errorf("capture: read %s: %w", name, err)
		}

		st.Records++
		records.Inc()

		if _, err := acc.AcceptMessage(rec.Header, rec.Payload); err != nil {
			st.Rejected++
			logger.Debug("record rejected", "header", rec.Header, "error", err)
			continue
		}
		st.Accepted++
	}
}
