// Package answerer runs a loopback SIP endpoint that answers every
// incoming call, so the load generator can point its originate string
// at a destination it controls. Calls reach it through the device
// under test; the orchestrator never talks to this package directly.
package answerer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
)

// Config holds the answerer's listen and media settings.
type Config struct {
	BindAddr      string
	Port          int
	AdvertiseAddr string // Address placed in Contact and SDP

	// Media enables the PCMU silence stream on answered calls.
	Media bool

	// MaxCallDuration hangs up calls the switch never clears. Zero
	// disables the guard.
	MaxCallDuration time.Duration
}

// call is one answered dialog.
type call struct {
	callID  string
	session *sipgo.DialogServerSession
	rtpConn net.PacketConn
	cancel  context.CancelFunc
}

// Server is the auto-answer UAS. It keeps a registry of answered
// dialogs keyed by Call-ID, mirroring how the switch correlates legs.
type Server struct {
	cfg Config

	ua       *sipgo.UserAgent
	srv      *sipgo.Server
	client   *sipgo.Client
	dialogUA *sipgo.DialogUA

	mu    sync.Mutex
	calls map[string]*call
}

// NewServer creates the answerer and registers its SIP handlers.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.BindAddr
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		ua:     ua,
		srv:    srv,
		client: client,
		dialogUA: &sipgo.DialogUA{
			Client: client,
			ContactHDR: sip.ContactHeader{
				Address: sip.Uri{
					Scheme: "sip",
					User:   "loadcall",
					Host:   cfg.AdvertiseAddr,
					Port:   cfg.Port,
				},
			},
		},
		calls: make(map[string]*call),
	}

	srv.OnRequest(sip.INVITE, s.handleINVITE)
	srv.OnRequest(sip.ACK, s.handleACK)
	srv.OnRequest(sip.BYE, s.handleBYE)
	srv.OnRequest(sip.CANCEL, s.handleCANCEL)

	return s, nil
}

// Start listens for SIP traffic until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddr, s.cfg.Port)
	slog.Info("[Answerer] Listening", "addr", addr, "media", s.cfg.Media)
	return s.srv.ListenAndServe(ctx, "udp", addr)
}

// Close tears down all calls and the SIP stack.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.calls {
		c.teardown()
	}
	s.calls = make(map[string]*call)
	s.mu.Unlock()
	s.ua.Close()
}

// Count returns the number of currently answered calls.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *Server) handleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if req.CallID() != nil {
		callID = req.CallID().String()
	}
	if callID == "" {
		respond(req, tx, sip.StatusBadRequest, "Missing Call-ID")
		return
	}

	s.mu.Lock()
	_, dup := s.calls[callID]
	s.mu.Unlock()
	if dup {
		// INVITE retransmission for a dialog we already answered.
		slog.Debug("[Answerer] Duplicate INVITE ignored", "call_id", callID)
		return
	}

	offer, err := parseOffer(req.Body())
	if err != nil {
		slog.Warn("[Answerer] Rejecting INVITE with bad SDP", "call_id", callID, "error", err)
		respond(req, tx, sip.StatusBadRequest, "Bad SDP")
		return
	}
	if !offer.HasPCMU() {
		slog.Warn("[Answerer] No PCMU offered", "call_id", callID, "codecs", fmt.Sprint(offer.Codecs))
		respond(req, tx, sip.StatusNotAcceptable, "PCMU Required")
		return
	}

	// Allocate the RTP socket before answering so the SDP advertises
	// a port we actually own.
	var rtpConn net.PacketConn
	localPort := 0
	if s.cfg.Media {
		rtpConn, err = net.ListenPacket("udp", fmt.Sprintf("%s:0", s.cfg.BindAddr))
		if err != nil {
			slog.Error("[Answerer] RTP socket allocation failed", "call_id", callID, "error", err)
			respond(req, tx, sip.StatusInternalServerError, "No Media Port")
			return
		}
		localPort = rtpConn.LocalAddr().(*net.UDPAddr).Port
	}

	answer, err := buildAnswerSDP(s.cfg.AdvertiseAddr, localPort)
	if err != nil {
		slog.Error("[Answerer] SDP answer failed", "call_id", callID, "error", err)
		closePacketConn(rtpConn)
		respond(req, tx, sip.StatusInternalServerError, "SDP Failure")
		return
	}

	session, err := s.dialogUA.ReadInvite(req, tx)
	if err != nil {
		slog.Error("[Answerer] Failed to read INVITE", "call_id", callID, "error", err)
		closePacketConn(rtpConn)
		return
	}
	if err := session.RespondSDP(answer); err != nil {
		slog.Error("[Answerer] Failed to send 200 OK", "call_id", callID, "error", err)
		session.Close()
		closePacketConn(rtpConn)
		return
	}

	callCtx, cancel := context.WithCancel(context.Background())
	c := &call{callID: callID, session: session, rtpConn: rtpConn, cancel: cancel}

	s.mu.Lock()
	s.calls[callID] = c
	s.mu.Unlock()

	if s.cfg.Media {
		remote := &net.UDPAddr{IP: net.ParseIP(offer.Addr), Port: offer.Port}
		go newSilenceStream(rtpConn, remote).run(callCtx)
	}
	if s.cfg.MaxCallDuration > 0 {
		go s.watchCallDuration(callCtx, c)
	}

	slog.Info("[Answerer] Answered call", "call_id", callID, "remote", offer.Addr)
}

func (s *Server) handleACK(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := s.lookup(req)
	if !ok {
		return
	}
	if err := c.session.ReadAck(req, tx); err != nil {
		slog.Warn("[Answerer] Failed to read ACK", "call_id", c.callID, "error", err)
	}
}

func (s *Server) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := s.lookup(req)
	if !ok {
		respond(req, tx, sip.StatusCode(481), "Call Does Not Exist")
		return
	}
	if err := c.session.ReadBye(req, tx); err != nil {
		slog.Warn("[Answerer] Failed to read BYE", "call_id", c.callID, "error", err)
	}
	s.remove(c.callID)
	slog.Info("[Answerer] Call ended", "call_id", c.callID)
}

func (s *Server) handleCANCEL(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := s.lookup(req)
	if !ok {
		respond(req, tx, sip.StatusCode(481), "Call Does Not Exist")
		return
	}
	respond(req, tx, sip.StatusOK, "OK")
	s.remove(c.callID)
	slog.Info("[Answerer] Call cancelled", "call_id", c.callID)
}

// watchCallDuration sends BYE for calls the switch never cleared.
func (s *Server) watchCallDuration(ctx context.Context, c *call) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.MaxCallDuration):
	}

	slog.Warn("[Answerer] Call exceeded max duration, hanging up", "call_id", c.callID)
	byeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.session.Bye(byeCtx); err != nil {
		slog.Warn("[Answerer] Failed to send BYE", "call_id", c.callID, "error", err)
	}
	s.remove(c.callID)
}

func (s *Server) lookup(req *sip.Request) (*call, bool) {
	callID := ""
	if req.CallID() != nil {
		callID = req.CallID().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	return c, ok
}

// remove drops a call from the registry and tears it down.
func (s *Server) remove(callID string) {
	s.mu.Lock()
	c, ok := s.calls[callID]
	if ok {
		delete(s.calls, callID)
	}
	s.mu.Unlock()
	if ok {
		c.teardown()
	}
}

func (c *call) teardown() {
	c.cancel()
	c.session.Close()
	closePacketConn(c.rtpConn)
}

func respond(req *sip.Request, tx sip.ServerTransaction, code sip.StatusCode, reason string) {
	resp := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(resp); err != nil {
		slog.Warn("[Answerer] Failed to respond", "code", int(code), "error", err)
	}
}

func closePacketConn(conn net.PacketConn) {
	if conn != nil {
		conn.Close()
	}
}
