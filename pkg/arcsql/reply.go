package arcsql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ReplyType is the message type the agent declares for a reply.
type ReplyType string

const (
	ReplyKPI   ReplyType = "kpi"
	ReplyTable ReplyType = "table"
	// ReplyText is a conversational answer that carries no query.
	ReplyText ReplyType = "text"
)

// Reply is a model reply that passed structural validation.
type Reply struct {
	Type    ReplyType `json:"messageType"`
	Message string    `json:"message"`
	ArcSQL  *ArcSQL   `json:"arcSql"`
}

// Actionable reports whether the reply carries a query that updates the formula.
func (r *Reply) Actionable() bool {
	return r.ArcSQL != nil && (r.Type == ReplyKPI || r.Type == ReplyTable)
}

// InvalidReply is returned when a model reply cannot be used. Reason is fed back
// to the model on retry.
type InvalidReply struct {
	Reason string
}

func (e *InvalidReply) Error() string {
	return "invalid agent reply: " + e.Reason
}

// IsRetryable marks every invalid reply as worth another attempt.
func (e *InvalidReply) IsRetryable() bool { return true }

func invalid(format string, args ...any) *InvalidReply {
	return &InvalidReply{Reason: fmt.Sprintf(format, args...)}
}

// ParseReply validates a raw agent document of the form
//
//	{"messageType": "kpi|table|text", "message": "...", "arcSql": {...} | null}
//
// Field presence is checked explicitly; unknown fields inside arcSql are rejected.
func ParseReply(doc string) (*Reply, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil, invalid("reply is empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, invalid("reply is not a JSON object: %v", err)
	}

	rawType, ok := fields["messageType"]
	if !ok {
		return nil, invalid("missing messageType")
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, invalid("messageType must be a string")
	}
	reply := &Reply{Type: ReplyType(strings.ToLower(strings.TrimSpace(typ)))}

	rawMsg, ok := fields["message"]
	if !ok {
		return nil, invalid("missing message")
	}
	if err := json.Unmarshal(rawMsg, &reply.Message); err != nil {
		return nil, invalid("message must be a string")
	}

	rawQuery, hasQuery := fields["arcSql"]
	hasQuery = hasQuery && !isNull(rawQuery)

	switch reply.Type {
	case ReplyKPI, ReplyTable:
		if !hasQuery {
			return nil, invalid("messageType %s requires arcSql", reply.Type)
		}
		var q ArcSQL
		if err := decodeStrict(rawQuery, &q); err != nil {
			return nil, invalid("arcSql does not match the expected shape: %v", err)
		}
		if strings.TrimSpace(q.Table) == "" {
			return nil, invalid("arcSql.table is required")
		}
		if len(q.Columns) == 0 {
			return nil, invalid("arcSql.columns must not be empty")
		}
		for i, c := range q.Columns {
			if strings.TrimSpace(c.Column) == "" {
				return nil, invalid("arcSql.columns[%d].column is required", i)
			}
		}
		for i, f := range q.Filters {
			if strings.TrimSpace(f.Column) == "" || strings.TrimSpace(string(f.Operator)) == "" {
				return nil, invalid("arcSql.filters[%d] needs column and operator", i)
			}
		}
		reply.ArcSQL = &q
	case ReplyText:
		if hasQuery {
			return nil, invalid("messageType text must not carry arcSql")
		}
	default:
		return nil, invalid("unknown messageType %q", typ)
	}

	return reply, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeStrict keeps numbers as json.Number so integer literals survive to Translate unchanged.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}
