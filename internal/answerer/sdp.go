package answerer

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// Offer is the media endpoint a caller advertised in its SDP.
type Offer struct {
	Addr   string
	Port   int
	Codecs []string // Offered payload types, e.g. ["0", "8", "101"]
}

// HasPCMU reports whether the caller offered G.711 µ-law.
func (o Offer) HasPCMU() bool {
	for _, pt := range o.Codecs {
		if pt == "0" {
			return true
		}
	}
	return false
}

// parseOffer extracts the caller's RTP endpoint and offered codecs
// from an SDP body.
func parseOffer(body []byte) (Offer, error) {
	if len(body) == 0 {
		return Offer{}, fmt.Errorf("no SDP body in INVITE")
	}

	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return Offer{}, fmt.Errorf("parse SDP: %w", err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return Offer{}, fmt.Errorf("no media descriptions in SDP")
	}

	media := desc.MediaDescriptions[0]
	offer := Offer{
		Port:   media.MediaName.Port.Value,
		Codecs: media.MediaName.Formats,
	}

	if media.ConnectionInformation != nil && media.ConnectionInformation.Address != nil {
		offer.Addr = media.ConnectionInformation.Address.Address
	} else if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		offer.Addr = desc.ConnectionInformation.Address.Address
	}
	if offer.Addr == "" {
		return Offer{}, fmt.Errorf("no connection address in SDP")
	}

	return offer, nil
}

// buildAnswerSDP creates the PCMU answer advertising our RTP endpoint.
func buildAnswerSDP(localAddr string, localPort int) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "loadcall",
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localAddr,
		},
		SessionName: "loadcall answerer",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localAddr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: localPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "0 PCMU/8000"},
					{Key: "ptime", Value: "20"},
					{Key: "sendrecv"},
				},
			},
		},
	}

	body, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal SDP answer: %w", err)
	}
	return body, nil
}
