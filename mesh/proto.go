package mesh

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/scgolang/osc"
)

// DefaultPort is the UDP port a sync master listens on.
const DefaultPort = 9023

// OSC addresses used by the sync protocol.
const (
	AddressState = "/chroma/sync/state"
	AddressHello = "/chroma/sync/hello"
	AddressBye   = "/chroma/sync/bye"
	AddressPing  = "/chroma/sync/ping"
	AddressPong  = "/chroma/sync/pong"
	AddressTempo = "/chroma/sync/tempo"
	AddressReply = "/reply"
)

// StatePayload is the timeline as broadcast by the master. Host times
// are in the master's clock domain; followers translate them through
// their offset estimate before installing the snapshot.
type StatePayload struct {
	Tempo          float64 `cbor:"tempo"`
	OriginBeats    float64 `cbor:"origin_beats"`
	OriginHostTime uint64  `cbor:"origin_host_time"`
	Generation     uint64  `cbor:"generation"`
	Peers          uint64  `cbor:"peers"`
}

// HelloPayload announces a follower's reply address to the master. The
// address travels in the payload because the UDP sender address is not
// reliable once rebinds are involved.
type HelloPayload struct {
	Host string `cbor:"host"`
	Port int    `cbor:"port"`
}

// PingPayload measures clock offset between a follower and the master.
// The follower stamps SentAt from its own clock; the master echoes the
// payload back as a pong with RemoteAt stamped from the master clock.
type PingPayload struct {
	Host     string `cbor:"host"`
	Port     int    `cbor:"port"`
	SentAt   uint64 `cbor:"sent_at"`
	RemoteAt uint64 `cbor:"remote_at,omitempty"`
}

func blobMessage(address string, payload any) (osc.Message, error) {
	b, err := cbor.Marshal(payload)
	if err != nil {
		return osc.Message{}, errors.Wrapf(err, "encoding %s payload", address)
	}
	return osc.Message{
		Address:   address,
		Arguments: osc.Arguments{osc.Blob(b)},
	}, nil
}

func decodeBlob(m osc.Message, payload any) error {
	if len(m.Arguments) < 1 {
		return errors.Errorf("%s: expected at least one argument", m.Address)
	}
	b, err := m.Arguments[0].ReadBlob()
	if err != nil {
		return errors.Wrapf(err, "%s: reading blob argument", m.Address)
	}
	// Blobs arrive zero-padded to a 4-byte boundary, so decode exactly
	// one item and leave the padding in the reader.
	if err := cbor.NewDecoder(bytes.NewReader(b)).Decode(payload); err != nil {
		return errors.Wrapf(err, "%s: decoding payload", m.Address)
	}
	return nil
}

func stateMessage(p StatePayload) (osc.Message, error) {
	return blobMessage(AddressState, p)
}

func statePayload(m osc.Message) (StatePayload, error) {
	var p StatePayload
	if err := decodeBlob(m, &p); err != nil {
		return p, err
	}
	if p.Tempo <= 0 {
		return p, errors.Errorf("state payload carries invalid tempo %v", p.Tempo)
	}
	return p, nil
}

func helloMessage(p HelloPayload) (osc.Message, error) {
	return blobMessage(AddressHello, p)
}

func helloPayload(m osc.Message) (HelloPayload, error) {
	var p HelloPayload
	if err := decodeBlob(m, &p); err != nil {
		return p, err
	}
	if p.Host == "" || p.Port <= 0 {
		return p, errors.Errorf("hello payload carries invalid address %s:%d", p.Host, p.Port)
	}
	return p, nil
}

func byeMessage(p HelloPayload) (osc.Message, error) {
	return blobMessage(AddressBye, p)
}

func pingMessage(p PingPayload) (osc.Message, error) {
	return blobMessage(AddressPing, p)
}

func pongMessage(p PingPayload) (osc.Message, error) {
	return blobMessage(AddressPong, p)
}

func pingPayload(m osc.Message) (PingPayload, error) {
	var p PingPayload
	if err := decodeBlob(m, &p); err != nil {
		return p, err
	}
	return p, nil
}
