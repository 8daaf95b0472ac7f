package staging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

// wireSession is the JSON form of a Session. Record is a closed interface,
// so each row carries exactly one of the typed payloads.
type wireSession struct {
	Token     string    `json:"token"`
	TenantID  string    `json:"tenant"`
	Kind      core.Kind `json:"kind"`
	FileName  string    `json:"fileName"`
	Rows      []wireRow `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type wireRow struct {
	Row       int                   `json:"row"`
	Errors    []core.RowError       `json:"errors,omitempty"`
	Order     *core.Order           `json:"order,omitempty"`
	Purchase  *core.Purchase        `json:"purchase,omitempty"`
	Logistics *core.LogisticsRecord `json:"logistics,omitempty"`
}

func encodeSession(s *Session) ([]byte, error) {
	w := wireSession{
		Token:     s.Token,
		TenantID:  s.TenantID,
		Kind:      s.Kind,
		FileName:  s.FileName,
		Rows:      make([]wireRow, len(s.Rows)),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	for i, r := range s.Rows {
		wr := wireRow{Row: r.Row, Errors: r.Errors}
		switch rec := r.Record.(type) {
		case nil:
		case core.Order:
			wr.Order = &rec
		case core.Purchase:
			wr.Purchase = &rec
		case core.LogisticsRecord:
			wr.Logistics = &rec
		default:
			return nil, fmt.Errorf("encode session: unexpected record %T", rec)
		}
		w.Rows[i] = wr
	}
	return json.Marshal(w)
}

func decodeSession(data []byte) (*Session, error) {
	var w wireSession
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s := &Session{
		Token:     w.Token,
		TenantID:  w.TenantID,
		Kind:      w.Kind,
		FileName:  w.FileName,
		Rows:      make([]core.RowOutcome, len(w.Rows)),
		CreatedAt: w.CreatedAt,
		ExpiresAt: w.ExpiresAt,
	}
	for i, wr := range w.Rows {
		out := core.RowOutcome{Row: wr.Row, Errors: wr.Errors}
		switch {
		case wr.Order != nil:
			out.Record = *wr.Order
		case wr.Purchase != nil:
			out.Record = *wr.Purchase
		case wr.Logistics != nil:
			out.Record = *wr.Logistics
		}
		s.Rows[i] = out
	}
	return s, nil
}
