package hotstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// Hash fields cross the hot-store boundary as strings. Everything is
// parsed defensively right here so downstream code only ever sees typed
// records.

const timeLayout = time.RFC3339Nano

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func hashFloat(h map[string]string, field string) (float64, error) {
	raw, ok := h[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	return v, nil
}

func hashInt(h map[string]string, field string) (int, error) {
	raw, ok := h[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	return v, nil
}

func hashTime(h map[string]string, field string) (time.Time, error) {
	raw, ok := h[field]
	if !ok {
		return time.Time{}, fmt.Errorf("missing field %q", field)
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", field, err)
	}
	return t, nil
}

func hashUUID(h map[string]string, field string) (uuid.UUID, error) {
	raw, ok := h[field]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing field %q", field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field %q: %w", field, err)
	}
	return id, nil
}

func parseBidFields(h map[string]string) (BidFields, error) {
	var (
		b   BidFields
		err error
	)
	if b.Price, err = hashFloat(h, "price"); err != nil {
		return b, err
	}
	if b.Score, err = hashFloat(h, "score"); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = hashTime(h, "updated_at"); err != nil {
		return b, err
	}
	return b, nil
}

func parseMetadata(h map[string]string) (Metadata, error) {
	var (
		m   Metadata
		err error
	)
	if m.UserID, err = hashUUID(h, "user_id"); err != nil {
		return m, err
	}
	if m.Price, err = hashFloat(h, "bid_price"); err != nil {
		return m, err
	}
	if m.Score, err = hashFloat(h, "bid_score"); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = hashTime(h, "updated_at"); err != nil {
		return m, err
	}
	return m, nil
}

func parseParams(h map[string]string) (auction.Params, error) {
	var (
		p   auction.Params
		err error
	)
	if p.Alpha, err = hashFloat(h, "alpha"); err != nil {
		return p, err
	}
	if p.Beta, err = hashFloat(h, "beta"); err != nil {
		return p, err
	}
	if p.Gamma, err = hashFloat(h, "gamma"); err != nil {
		return p, err
	}
	if p.Reserve, err = hashFloat(h, "reserve_price"); err != nil {
		return p, err
	}
	if p.Inventory, err = hashInt(h, "inventory"); err != nil {
		return p, err
	}
	if p.Start, err = hashTime(h, "start_time"); err != nil {
		return p, err
	}
	if p.End, err = hashTime(h, "end_time"); err != nil {
		return p, err
	}
	return p, nil
}

func paramsHash(p auction.Params) map[string]string {
	return map[string]string{
		"alpha":         formatFloat(p.Alpha),
		"beta":          formatFloat(p.Beta),
		"gamma":         formatFloat(p.Gamma),
		"reserve_price": formatFloat(p.Reserve),
		"inventory":     strconv.Itoa(p.Inventory),
		"start_time":    formatTime(p.Start),
		"end_time":      formatTime(p.End),
	}
}

func parsePrincipal(h map[string]string) (auction.Principal, error) {
	var (
		p   auction.Principal
		err error
	)
	if p.ID, err = hashUUID(h, "id"); err != nil {
		return p, err
	}
	username, ok := h["username"]
	if !ok {
		return p, fmt.Errorf("missing field %q", "username")
	}
	p.Username = username
	if p.Weight, err = hashFloat(h, "weight"); err != nil {
		return p, err
	}
	p.IsAdmin = h["is_admin"] == "1"
	return p, nil
}

func principalHash(p auction.Principal) map[string]string {
	isAdmin := "0"
	if p.IsAdmin {
		isAdmin = "1"
	}
	return map[string]string{
		"id":       p.ID.String(),
		"username": p.Username,
		"weight":   formatFloat(p.Weight),
		"is_admin": isAdmin,
	}
}
