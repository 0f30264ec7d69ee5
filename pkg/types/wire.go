package types

import (
	"bytes"
	"fmt"
)

// MarshalJSON encodes the event in its pre-transport wire shape:
//
//	{ n?, s, pg, type, ep, f, lsl, wzrk_error?, pai?, <extras>, <domain fields> }
//
// Unenriched events encode their domain fields only.
func (e *Event) MarshalJSON() ([]byte, error) {
	out := NewPayload()

	if en := e.enrichment; en != nil {
		if en.ScreenName != "" && !en.Lightweight {
			out.Set(KeyScreenName, en.ScreenName)
		}
		out.Set(KeySessionID, en.SessionID)
		if !en.Lightweight {
			out.Set(KeyPageCount, en.PageCount)
		}
		out.Set(KeyType, en.Type)
		out.Set(KeyEpoch, en.EpochSeconds)
		if !en.Lightweight {
			out.Set(KeyFirstSession, en.FirstSession)
			out.Set(KeyLastSessionLength, en.LastSessionLengthSeconds)
		}
		if en.Error != nil {
			out.Set(KeyError, en.Error)
		}
		if en.PackageName != "" {
			out.Set(KeyPackageName, en.PackageName)
		}
		en.Extras.Range(func(key string, value any) bool {
			out.Set(key, value)
			return true
		})
	}

	switch {
	case e.Kind == KindProfile:
		out.Set(KeyProfile, payloadOrEmpty(e.Payload))
	case e.Name != "":
		out.Set(KeyEventName, e.Name)
		out.Set(KeyEventData, payloadOrEmpty(e.Payload))
	default:
		e.Payload.Range(func(key string, value any) bool {
			out.Set(key, value)
			return true
		})
	}

	var buf bytes.Buffer
	if err := out.writeJSON(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", e.Kind, err)
	}
	return buf.Bytes(), nil
}

func payloadOrEmpty(p *Payload) *Payload {
	if p == nil {
		return NewPayload()
	}
	return p
}
