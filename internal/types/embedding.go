package types

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeVector stores an embedding as a jsonb float array. Vectors are
// immutable once written; replacement means delete-and-recreate the row.
func EncodeVector(v []float32) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func DecodeVector(raw datatypes.JSON) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
