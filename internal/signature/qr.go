package signature

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

const (
	TypeFamilyVisit = "family_visit"
	TypeVoucher     = "voucher"

	maxClockSkew = 5 * time.Minute
)

var (
	ErrMalformed    = errors.New("signature: malformed payload")
	ErrWrongType    = errors.New("signature: wrong payload type")
	ErrBadSignature = errors.New("signature: invalid signature")
	ErrExpired      = errors.New("signature: payload expired")
)

// FamilyPayload is what a family's personal QR carries. Field order is the
// canonical signing order.
type FamilyPayload struct {
	FamilyID   string `json:"familyId"`
	ClientCode string `json:"clientCode"`
	Timestamp  int64  `json:"timestamp"` // ms epoch
	Type       string `json:"type"`
}

type VoucherPayload struct {
	VoucherID   string `json:"voucherId"`
	VoucherCode string `json:"voucherCode"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
}

type sealedFamily struct {
	FamilyPayload
	Signature string `json:"signature"`
}

type sealedVoucher struct {
	VoucherPayload
	Signature string `json:"signature"`
}

// SealFamily signs a family_visit payload issued at t.
func (s *Signer) SealFamily(familyID, clientCode string, t time.Time) (string, error) {
	p := FamilyPayload{FamilyID: familyID, ClientCode: clientCode, Timestamp: t.UnixMilli(), Type: TypeFamilyVisit}
	canon, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(sealedFamily{FamilyPayload: p, Signature: s.Sign(string(canon))})
	return string(out), err
}

func (s *Signer) SealVoucher(voucherID, code string, t time.Time) (string, error) {
	p := VoucherPayload{VoucherID: voucherID, VoucherCode: code, Timestamp: t.UnixMilli(), Type: TypeVoucher}
	canon, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(sealedVoucher{VoucherPayload: p, Signature: s.Sign(string(canon))})
	return string(out), err
}

// OpenFamily verifies a sealed family payload and returns it together with its
// signature, which identifies the QR for single-use bookkeeping.
func (s *Signer) OpenFamily(raw string, now time.Time, maxAge time.Duration) (FamilyPayload, string, error) {
	var sf sealedFamily
	if err := decodeStrict(raw, &sf); err != nil {
		return FamilyPayload{}, "", err
	}
	p := sf.FamilyPayload
	if p.FamilyID == "" || p.ClientCode == "" || p.Timestamp == 0 || sf.Signature == "" {
		return FamilyPayload{}, "", ErrMalformed
	}
	if p.Type != TypeFamilyVisit {
		return FamilyPayload{}, "", ErrWrongType
	}
	if err := s.check(p, sf.Signature, p.Timestamp, now, maxAge); err != nil {
		return FamilyPayload{}, "", err
	}
	return p, sf.Signature, nil
}

func (s *Signer) OpenVoucher(raw string, now time.Time, maxAge time.Duration) (VoucherPayload, error) {
	var sv sealedVoucher
	if err := decodeStrict(raw, &sv); err != nil {
		return VoucherPayload{}, err
	}
	p := sv.VoucherPayload
	if p.VoucherID == "" || p.VoucherCode == "" || p.Timestamp == 0 || sv.Signature == "" {
		return VoucherPayload{}, ErrMalformed
	}
	if p.Type != TypeVoucher {
		return VoucherPayload{}, ErrWrongType
	}
	if err := s.check(p, sv.Signature, p.Timestamp, now, maxAge); err != nil {
		return VoucherPayload{}, err
	}
	return p, nil
}

// check verifies the signature before trusting the embedded timestamp.
func (s *Signer) check(canonical any, sig string, ts int64, now time.Time, maxAge time.Duration) error {
	canon, err := json.Marshal(canonical)
	if err != nil {
		return ErrMalformed
	}
	if !s.Verify(string(canon), sig) {
		return ErrBadSignature
	}
	age := now.Sub(time.UnixMilli(ts))
	if age < -maxClockSkew {
		return ErrMalformed
	}
	if age > maxAge {
		return ErrExpired
	}
	return nil
}

func decodeStrict(raw string, into any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return ErrMalformed
	}
	if dec.More() {
		return ErrMalformed
	}
	return nil
}
