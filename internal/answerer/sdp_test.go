package answerer

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
)

const sampleOffer = "v=0\r\n" +
	"o=FreeSWITCH 1718901024 1718901025 IN IP4 192.168.1.50\r\n" +
	"s=FreeSWITCH\r\n" +
	"c=IN IP4 192.168.1.50\r\n" +
	"t=0 0\r\n" +
	"m=audio 24862 RTP/AVP 0 8 101\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n"

func TestParseOffer(t *testing.T) {
	offer, err := parseOffer([]byte(sampleOffer))
	if err != nil {
		t.Fatalf("parseOffer() error: %v", err)
	}

	if offer.Addr != "192.168.1.50" {
		t.Errorf("Addr = %q, want 192.168.1.50", offer.Addr)
	}
	if offer.Port != 24862 {
		t.Errorf("Port = %d, want 24862", offer.Port)
	}
	if len(offer.Codecs) != 3 || offer.Codecs[0] != "0" {
		t.Errorf("Codecs = %v, want [0 8 101]", offer.Codecs)
	}
	if !offer.HasPCMU() {
		t.Error("HasPCMU() = false, want true")
	}
}

func TestParseOfferMediaLevelConnection(t *testing.T) {
	// Connection line on the media description overrides the session
	// level one.
	body := "v=0\r\n" +
		"o=test 1 1 IN IP4 10.0.0.1\r\n" +
		"s=test\r\n" +
		"c=IN IP4 10.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 0\r\n" +
		"c=IN IP4 10.0.0.2\r\n"

	offer, err := parseOffer([]byte(body))
	if err != nil {
		t.Fatalf("parseOffer() error: %v", err)
	}
	if offer.Addr != "10.0.0.2" {
		t.Errorf("Addr = %q, want media-level 10.0.0.2", offer.Addr)
	}
}

func TestParseOfferErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not SDP", "hello world"},
		{"no media", "v=0\r\no=test 1 1 IN IP4 10.0.0.1\r\ns=test\r\nc=IN IP4 10.0.0.1\r\nt=0 0\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseOffer([]byte(tc.body)); err == nil {
				t.Error("parseOffer() = nil error, want error")
			}
		})
	}
}

func TestHasPCMUWithoutPCMU(t *testing.T) {
	offer := Offer{Codecs: []string{"8", "101"}}
	if offer.HasPCMU() {
		t.Error("HasPCMU() = true for PCMA-only offer")
	}
}

func TestBuildAnswerSDP(t *testing.T) {
	body, err := buildAnswerSDP("10.1.2.3", 16384)
	if err != nil {
		t.Fatalf("buildAnswerSDP() error: %v", err)
	}

	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		t.Fatalf("answer does not parse: %v", err)
	}

	if desc.ConnectionInformation == nil || desc.ConnectionInformation.Address.Address != "10.1.2.3" {
		t.Error("answer missing connection address")
	}
	if len(desc.MediaDescriptions) != 1 {
		t.Fatalf("media descriptions = %d, want 1", len(desc.MediaDescriptions))
	}
	media := desc.MediaDescriptions[0]
	if media.MediaName.Port.Value != 16384 {
		t.Errorf("media port = %d, want 16384", media.MediaName.Port.Value)
	}
	if len(media.MediaName.Formats) != 1 || media.MediaName.Formats[0] != "0" {
		t.Errorf("formats = %v, want [0]", media.MediaName.Formats)
	}
	if !strings.Contains(string(body), "PCMU/8000") {
		t.Error("answer missing PCMU rtpmap")
	}
}
