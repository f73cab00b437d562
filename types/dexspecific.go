package types

import (
	"encoding/json"
	"maps"
)

// DexSpecific carries venue-specific request context. The well-known fields
// cover the bundle and cross-chain venues shipped with the proxy; anything
// else a venue stores round-trips through the Extensions slab so that
// entries written by newer builds survive (de)serialization by older ones.
type DexSpecific struct {
	// TargetedBlockNum is the block a bundle member was aimed at; zero when
	// the venue does not bundle.
	TargetedBlockNum uint64
	// BlockUUID is the replacementUuid of the bundle the request belongs to.
	BlockUUID string
	// DestinationChainID is set for bridge-style transfers.
	DestinationChainID uint64
	// SubaccountID selects the venue subaccount, where applicable.
	SubaccountID string

	// Extensions preserves unknown keys verbatim.
	Extensions map[string]json.RawMessage
}

const (
	dsTargetedBlockNum   = "targeted_block_num"
	dsBlockUUID          = "block_uuid"
	dsDestinationChainID = "destination_chain_id"
	dsSubaccountID       = "subaccount_id"
)

// IsZero reports whether d carries no venue context at all.
func (d DexSpecific) IsZero() bool {
	return d.TargetedBlockNum == 0 && d.BlockUUID == "" &&
		d.DestinationChainID == 0 && d.SubaccountID == "" && len(d.Extensions) == 0
}

// Clone returns a copy of d with its own Extensions map.
func (d DexSpecific) Clone() DexSpecific {
	out := d
	if d.Extensions != nil {
		out.Extensions = maps.Clone(d.Extensions)
	}
	return out
}

// MarshalJSON flattens the known fields and the extensions slab into one
// JSON object. Zero-valued known fields are omitted.
func (d DexSpecific) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(d.Extensions)+4)
	maps.Copy(obj, d.Extensions)
	if d.TargetedBlockNum != 0 {
		raw, err := json.Marshal(d.TargetedBlockNum)
		if err != nil {
			return nil, err
		}
		obj[dsTargetedBlockNum] = raw
	}
	if d.BlockUUID != "" {
		raw, err := json.Marshal(d.BlockUUID)
		if err != nil {
			return nil, err
		}
		obj[dsBlockUUID] = raw
	}
	if d.DestinationChainID != 0 {
		raw, err := json.Marshal(d.DestinationChainID)
		if err != nil {
			return nil, err
		}
		obj[dsDestinationChainID] = raw
	}
	if d.SubaccountID != "" {
		raw, err := json.Marshal(d.SubaccountID)
		if err != nil {
			return nil, err
		}
		obj[dsSubaccountID] = raw
	}
	return json.Marshal(obj)
}

// UnmarshalJSON extracts the known fields and keeps every other key in the
// Extensions slab.
func (d *DexSpecific) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*d = DexSpecific{}
	if raw, ok := obj[dsTargetedBlockNum]; ok {
		if err := json.Unmarshal(raw, &d.TargetedBlockNum); err != nil {
			return err
		}
		delete(obj, dsTargetedBlockNum)
	}
	if raw, ok := obj[dsBlockUUID]; ok {
		if err := json.Unmarshal(raw, &d.BlockUUID); err != nil {
			return err
		}
		delete(obj, dsBlockUUID)
	}
	if raw, ok := obj[dsDestinationChainID]; ok {
		if err := json.Unmarshal(raw, &d.DestinationChainID); err != nil {
			return err
		}
		delete(obj, dsDestinationChainID)
	}
	if raw, ok := obj[dsSubaccountID]; ok {
		if err := json.Unmarshal(raw, &d.SubaccountID); err != nil {
			return err
		}
		delete(obj, dsSubaccountID)
	}
	if len(obj) > 0 {
		d.Extensions = obj
	}
	return nil
}
