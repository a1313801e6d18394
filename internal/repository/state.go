package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"avia-bot/internal/domain"
)

const defaultTTL = 24 * time.Hour

// stateRecord is the serialized form shared by the Redis and DynamoDB stores.
type stateRecord struct {
	UserID    int64               `json:"user_id"`
	Params    domain.FlightParams `json:"params"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func encodeState(s domain.DialogState) ([]byte, error) {
	buf, err := json.Marshal(stateRecord{UserID: s.UserID, Params: s.Params, UpdatedAt: s.UpdatedAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("repository: encode state: %w", err)
	}
	return buf, nil
}

func decodeState(raw []byte) (domain.DialogState, error) {
	var rec stateRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.DialogState{}, fmt.Errorf("repository: decode state: %w", err)
	}
	return domain.DialogState{UserID: rec.UserID, Params: rec.Params, UpdatedAt: rec.UpdatedAt}, nil
}

func userKey(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
