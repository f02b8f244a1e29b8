package models

import "time"

// TransferStatus tracks the upload lifecycle of a transfer.
type TransferStatus string

const (
	StatusUploading TransferStatus = "uploading"
	StatusReady     TransferStatus = "ready"
)

// Transfer represents one file transfer tracked from upload to download.
// The Key and OTP fields never leave the server process; handlers respond
// with dedicated response structs, not with this type.
type Transfer struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	TotalChunks int            `json:"total_chunks"`
	Uploaded    int            `json:"uploaded"`
	Key         []byte         `json:"key,omitempty"`
	Salt        []byte         `json:"salt,omitempty"`
	AuthTag     []byte         `json:"auth_tag,omitempty"`
	IVs         [][]byte       `json:"ivs"`
	Status      TransferStatus `json:"status"`
	OTP         string         `json:"otp,omitempty"`
	Recipient   string         `json:"recipient,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Ready reports whether every chunk has landed.
func (t *Transfer) Ready() bool {
	return t.Status == StatusReady
}

// Clone returns a deep copy so registry backends can hand out records
// without sharing mutable slices with callers.
func (t *Transfer) Clone() *Transfer {
	c := *t
	c.Key = append([]byte(nil), t.Key...)
	c.Salt = append([]byte(nil), t.Salt...)
	c.AuthTag = append([]byte(nil), t.AuthTag...)
	c.IVs = make([][]byte, len(t.IVs))
	for i, iv := range t.IVs {
		if iv != nil {
			// an empty non-nil IV marks a landed passthrough chunk,
			// so the copy must stay non-nil
			dup := make([]byte, len(iv))
			copy(dup, iv)
			c.IVs[i] = dup
		}
	}
	return &c
}
