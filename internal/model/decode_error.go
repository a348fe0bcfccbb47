package model

// DecodeError is one line of the decode errors JSONL: the position of a log
// that could not be decoded and why.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
	TxHash      string `json:"tx_hash,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Line        int    `json:"line,omitempty"`
	Error       string `json:"error"`
}

// NewDecodeError describes a failure to decode record.
func NewDecodeError(record LogRecord, err error) DecodeError {
	return DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		LogIndex:    record.LogIndex,
		TxHash:      record.TxHash,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}
