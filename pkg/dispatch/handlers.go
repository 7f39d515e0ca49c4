package dispatch

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/backkem/lattice/pkg/device"
	"github.com/backkem/lattice/pkg/signing"
	"github.com/backkem/lattice/pkg/uichannel"
	"github.com/backkem/lattice/pkg/wire"
)

// MaxKvBatch bounds the records one addKvRecords or removeKvRecords
// request may carry.
const MaxKvBatch = 10

func (d *Dispatcher) handleFinalizePairing(env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.FinalizePairingRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}

	if env.Pairing == nil {
		return wire.CodePairDisabled, nil
	}

	if err := env.Pairing.Finalize(env.Session, req.AppName, req.Signature); err != nil {
		return wire.CodePairFailed, nil
	}

	return wire.CodeSuccess, nil
}

func (d *Dispatcher) handleGetAddresses(ctx context.Context, env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.GetAddressesRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}

	if len(req.StartPath) < wire.MinAddressPathDepth || len(req.StartPath) > wire.MaxPathDepth {
		return wire.CodeInvalidMsg, nil
	}
	if req.Count == 0 || req.Count > wire.MaxAddressCount {
		return wire.CodeInvalidMsg, nil
	}
	if !req.Flag.IsValid() {
		return wire.CodeInvalidMsg, nil
	}
	coinType, ok := wire.CoinTypeName(req.StartPath[1])
	if !ok {
		return wire.CodeInvalidMsg, nil
	}

	if env.UI == nil {
		return wire.CodeGceTimeout, nil
	}

	payload := uichannel.AddressesPayload{
		StartPath: req.StartPath,
		Count:     req.Count,
		CoinType:  coinType,
		Flag:      uint8(req.Flag),
	}
	data, err := env.UI.Request(ctx, uichannel.RequestWalletAddresses, payload)
	if err != nil {
		return uiErrorCode(err, wire.CodeGceTimeout), nil
	}

	var result uichannel.AddressesResult
	if err := json.Unmarshal(data, &result); err != nil {
		return wire.CodeInternalError, nil
	}
	if len(result.Addresses) != int(req.Count) {
		return wire.CodeInternalError, nil
	}

	resp := wire.GetAddressesResponse{Addresses: make([]string, len(result.Addresses))}
	for i, a := range result.Addresses {
		resp.Addresses[i] = a.Address
	}

	return wire.CodeSuccess, resp.Encode()
}

func (d *Dispatcher) handleSign(ctx context.Context, env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.SignRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}
	if len(req.Data) == 0 {
		return wire.CodeInvalidMsg, nil
	}
	if len(req.Path) == 0 || len(req.Path) > wire.MaxPathDepth {
		return wire.CodeInvalidMsg, nil
	}

	if env.UI == nil {
		return wire.CodeUserTimeout, nil
	}

	pending := d.signing.Create(env.Device.ID(), signing.TypeSign, map[string]interface{}{
		"path":     req.Path,
		"schema":   req.Schema.String(),
		"curve":    req.Curve.String(),
		"encoding": req.Encoding.String(),
		"hashType": req.HashType.String(),
		"data":     hex.EncodeToString(req.Data),
	}, 0)

	status, result := d.signing.Await(ctx, pending, env.Session.Done())
	switch status {
	case signing.StatusApproved:
		resp := wire.SignResponse{
			Signature:   result.Signature,
			Recovery:    result.Recovery,
			HasRecovery: result.HasRecovery,
		}
		return wire.CodeSuccess, resp.Encode()
	case signing.StatusRejected:
		return wire.CodeUserDeclined, nil
	default:
		return wire.CodeUserTimeout, nil
	}
}

func (d *Dispatcher) handleGetWallets(env Env) (wire.ResponseCode, []byte) {
	internal, external := env.Device.ActiveWallets()
	resp := wire.GetWalletsResponse{
		Internal: internal.ToWire(),
		External: external.ToWire(),
	}
	return wire.CodeSuccess, resp.Encode()
}

func (d *Dispatcher) handleGetKvRecords(env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.GetKvRecordsRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}
	if req.Count == 0 || req.Count > MaxKvBatch {
		return wire.CodeInvalidMsg, nil
	}

	total, records := env.Device.GetKvPage(req.Count, req.Start)
	resp := wire.GetKvRecordsResponse{Total: total, Records: records}

	return wire.CodeSuccess, resp.Encode()
}

func (d *Dispatcher) handleAddKvRecords(ctx context.Context, env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.AddKvRecordsRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}
	if len(req.Records) > MaxKvBatch {
		return wire.CodeInvalidMsg, nil
	}

	// Duplicates are answered before the user is bothered.
	for _, r := range req.Records {
		if _, exists := env.Device.GetKvRecord(r.Key); exists {
			return wire.CodeAlready, nil
		}
	}

	if env.UI == nil {
		return wire.CodeUserTimeout, nil
	}
	if _, err := env.UI.Request(ctx, uichannel.RequestKvAdd, map[string]interface{}{
		"records": req.Records,
	}); err != nil {
		return uiErrorCode(err, wire.CodeUserTimeout), nil
	}

	if err := env.Device.AddKvRecords(req.Records); err != nil {
		if errors.Is(err, device.ErrDuplicateKey) {
			return wire.CodeAlready, nil
		}
		return wire.CodeInvalidMsg, nil
	}

	return wire.CodeSuccess, nil
}

func (d *Dispatcher) handleRemoveKvRecords(ctx context.Context, env Env, plaintext []byte) (wire.ResponseCode, []byte) {
	var req wire.RemoveKvRecordsRequest
	if err := req.Decode(plaintext); err != nil {
		return wire.CodeInvalidMsg, nil
	}
	if len(req.IDs) > MaxKvBatch {
		return wire.CodeInvalidMsg, nil
	}

	// Position ids beyond the store are rejected before approval.
	total := uint32(env.Device.KvLen())
	for _, id := range req.IDs {
		if id >= total {
			return wire.CodeInvalidMsg, nil
		}
	}

	if env.UI == nil {
		return wire.CodeUserTimeout, nil
	}
	if _, err := env.UI.Request(ctx, uichannel.RequestKvRemove, map[string]interface{}{
		"ids": req.IDs,
	}); err != nil {
		return uiErrorCode(err, wire.CodeUserTimeout), nil
	}

	if err := env.Device.RemoveKvRecords(req.IDs); err != nil {
		return wire.CodeInvalidMsg, nil
	}

	return wire.CodeSuccess, nil
}
