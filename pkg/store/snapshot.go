// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
)

const (
	recordPrefix = "auction/"
	statsPrefix  = "stats/"
)

func recordKey(id ids.ID) []byte { return []byte(recordPrefix + id.String()) }
func statsKey(id ids.ID) []byte  { return []byte(statsPrefix + id.String()) }

// recordDoc is the persisted shape of an auction record. Amounts are
// decimal strings so snapshots stay readable in db dumps.
type recordDoc struct {
	ID               string `json:"id"`
	FromToken        string `json:"from_token"`
	FromScaler       string `json:"from_scaler"`
	ToToken          string `json:"to_token"`
	ToScaler         string `json:"to_scaler"`
	Receiver         string `json:"receiver"`
	KickedAt         uint64 `json:"kicked_at"`
	InitialAvailable string `json:"initial_available"`
	CurrentAvailable string `json:"current_available"`
	MinimumPrice     string `json:"minimum_price,omitempty"`
}

type statsDoc struct {
	Kicks         uint64 `json:"kicks"`
	Takes         uint64 `json:"takes"`
	TotalSold     string `json:"total_sold"`
	TotalProceeds string `json:"total_proceeds"`
	LastKickAt    uint64 `json:"last_kick_at"`
	LastTakeAt    uint64 `json:"last_take_at"`
}

func encodeRecord(rec auction.Record) ([]byte, error) {
	doc := recordDoc{
		ID:               rec.ID.String(),
		FromToken:        rec.From.Address,
		FromScaler:       decString(rec.From.Scaler),
		ToToken:          rec.To.Address,
		ToScaler:         decString(rec.To.Scaler),
		Receiver:         rec.Receiver,
		KickedAt:         rec.KickedAt,
		InitialAvailable: decString(rec.InitialAvailable),
		CurrentAvailable: decString(rec.CurrentAvailable),
	}
	if rec.MinimumPrice != nil {
		doc.MinimumPrice = rec.MinimumPrice.Dec()
	}
	return json.Marshal(doc)
}

func decodeRecord(raw []byte) (auction.Record, error) {
	var doc recordDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return auction.Record{}, err
	}

	id, err := ids.FromString(doc.ID)
	if err != nil {
		return auction.Record{}, fmt.Errorf("id: %w", err)
	}
	fromScaler, err := uint256.FromDecimal(doc.FromScaler)
	if err != nil {
		return auction.Record{}, fmt.Errorf("from scaler: %w", err)
	}
	toScaler, err := uint256.FromDecimal(doc.ToScaler)
	if err != nil {
		return auction.Record{}, fmt.Errorf("to scaler: %w", err)
	}
	initial, err := uint256.FromDecimal(doc.InitialAvailable)
	if err != nil {
		return auction.Record{}, fmt.Errorf("initial available: %w", err)
	}
	current, err := uint256.FromDecimal(doc.CurrentAvailable)
	if err != nil {
		return auction.Record{}, fmt.Errorf("current available: %w", err)
	}

	rec := auction.Record{
		ID:               id,
		From:             auction.TokenRef{Address: doc.FromToken, Scaler: fromScaler},
		To:               auction.TokenRef{Address: doc.ToToken, Scaler: toScaler},
		Receiver:         doc.Receiver,
		KickedAt:         doc.KickedAt,
		InitialAvailable: initial,
		CurrentAvailable: current,
	}
	if doc.MinimumPrice != "" {
		floor, err := uint256.FromDecimal(doc.MinimumPrice)
		if err != nil {
			return auction.Record{}, fmt.Errorf("minimum price: %w", err)
		}
		rec.MinimumPrice = floor
	}
	return rec, nil
}

func encodeStats(st auction.Stats) ([]byte, error) {
	return json.Marshal(statsDoc{
		Kicks:         st.Kicks,
		Takes:         st.Takes,
		TotalSold:     decString(st.TotalSold),
		TotalProceeds: decString(st.TotalProceeds),
		LastKickAt:    st.LastKickAt,
		LastTakeAt:    st.LastTakeAt,
	})
}

func decodeStats(raw []byte) (auction.Stats, error) {
	var doc statsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return auction.Stats{}, err
	}
	sold, err := uint256.FromDecimal(doc.TotalSold)
	if err != nil {
		return auction.Stats{}, fmt.Errorf("total sold: %w", err)
	}
	proceeds, err := uint256.FromDecimal(doc.TotalProceeds)
	if err != nil {
		return auction.Stats{}, fmt.Errorf("total proceeds: %w", err)
	}

	return auction.Stats{
		Kicks:         doc.Kicks,
		Takes:         doc.Takes,
		TotalSold:     sold,
		TotalProceeds: proceeds,
		LastKickAt:    doc.LastKickAt,
		LastTakeAt:    doc.LastTakeAt,
	}, nil
}

func decString(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}
