// Package apwire is the client-side reimplementation of the handshake,
// framed transport, channel multiplexer and command set a proprietary
// streaming wire protocol exposes (spec.md §1). Client is the facade
// wiring those layers together the way the teacher's internal/app.Wire
// bundles stores, services and a relay behind one entry point.
package apwire

import (
	"crypto/rand"
	"net"
	"sync"

	"apwire/internal/crypto/dh"
	"apwire/internal/crypto/rsakeys"
	"apwire/internal/domain"
	"apwire/internal/protocol/channel"
	"apwire/internal/protocol/command"
	"apwire/internal/protocol/handshake"
	"apwire/internal/protocol/transport"
)

// dispatchQueueSize bounds the hand-off between the receive loop and
// the dispatch worker (Design Note 2: "the dispatcher enqueues...into
// a bounded queue drained by consumer tasks"). The receive thread
// itself must never block on a slow listener, so a full queue drops
// the newest frame rather than stalling ReceiveOne.
const dispatchQueueSize = 64

// Identity is the caller-supplied identity a Client authenticates with.
type Identity struct {
	Username       string
	ClientID       [4]byte
	ClientRevision [4]byte
	CacheHash      [domain.CacheHashSize]byte
}

// Client is a connected, authenticated session: one handshake, one
// Sender, one Receiver, one channel Registry, all scoped to the
// lifetime of conn (spec.md §5 Resources).
type Client struct {
	conn     net.Conn
	session  *domain.Session
	sender   *transport.Sender
	receiver *transport.Receiver
	registry *channel.Registry
	dispatch *channel.Dispatcher

	packets   chan transport.Packet
	closeOnce sync.Once
}

// Dial opens a TCP connection to addr and runs the handshake (Steps
// H1-H5) to completion, returning a ready-to-use Client.
func Dial(addr string, id Identity) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, domain.Errf(domain.KindConnectionLost, "apwire.Dial", err)
	}
	client, err := Connect(conn, id)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// Connect runs the handshake over an already-open connection, letting
// callers supply their own net.Conn (or a fake, for tests).
func Connect(conn net.Conn, id Identity) (*Client, error) {
	var clientRandom [domain.ClientRandomSize]byte
	if _, err := rand.Read(clientRandom[:]); err != nil {
		return nil, domain.Errf(domain.KindInvalidArgument, "apwire.Connect", err)
	}

	sess := domain.NewSession([]byte(id.Username), id.ClientID, id.ClientRevision, clientRandom, id.CacheHash)

	dhPair, err := dh.Generate()
	if err != nil {
		return nil, domain.Errf(domain.KindInvalidArgument, "apwire.Connect", err)
	}
	rsaPair, err := rsakeys.Generate()
	if err != nil {
		return nil, domain.Errf(domain.KindInvalidArgument, "apwire.Connect", err)
	}

	result, err := handshake.Run(conn, sess, dhPair, rsaPair)
	if err != nil {
		return nil, err
	}

	sendState := domain.NewSendState(result.ShannonSend)
	recvState := domain.NewRecvState(result.ShannonRecv)
	registry := channel.NewRegistry()

	c := &Client{
		conn:     conn,
		session:  result.Session,
		sender:   transport.NewSender(conn, sendState),
		receiver: transport.NewReceiver(conn, recvState),
		registry: registry,
		dispatch: channel.NewDispatcher(registry),
		packets:  make(chan transport.Packet, dispatchQueueSize),
	}
	go c.drainDispatch()
	return c, nil
}

// drainDispatch is the sole consumer task draining the bounded queue
// ServeOne feeds; it is where listener callbacks actually run, off the
// receive thread (spec.md §5: "Listener callbacks run on the receive
// thread and MUST be non-blocking").
func (c *Client) drainDispatch() {
	for pkt := range c.packets {
		c.dispatch.Dispatch(pkt.Payload)
	}
}

// Close tears down the connection, stops the dispatch worker, and
// zeroes the session's key material (spec.md §5 Resources).
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.packets) })
	c.session.Wipe()
	return c.conn.Close()
}

// ServeOne reads one inbound frame off the wire and enqueues it for
// dispatch, then returns immediately. Callers typically run this in a
// loop on a dedicated goroutine — the sole reader the receive path
// requires (spec.md §5 Scheduling model).
func (c *Client) ServeOne() error {
	pkt, err := c.receiver.ReceiveOne()
	if err != nil {
		return err
	}
	select {
	case c.packets <- pkt:
	default:
		// Queue full: drop this frame rather than block the receive
		// thread. Back-pressure policy is consumer-defined (Design
		// Note 2); a caller needing lossless delivery should drain
		// faster or size dispatchQueueSize accordingly.
	}
	return nil
}

// SendCacheHash sends CACHEHASH with the session's cache digest.
func (c *Client) SendCacheHash() error {
	return c.sender.Send(command.CacheHash, command.CacheHashPayload(c.session.CacheHash))
}

// SendPong replies to a server ping.
func (c *Client) SendPong() error {
	return c.sender.Send(command.Pong, command.PongPayload())
}

// RequestAd opens an AD channel and sends REQUESTAD.
func (c *Client) RequestAd(adType byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelAD, listener)
	if err := c.sender.Send(command.RequestAD, command.RequestADPayload(ch.ID, adType)); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// RequestImage opens an IMAGE channel and sends IMAGE.
func (c *Client) RequestImage(imageID [20]byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelImage, listener)
	if err := c.sender.Send(command.Image, command.ImagePayload(ch.ID, imageID)); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// Search opens a SEARCH channel and sends a query.
func (c *Client) Search(query string, offset, limit int32, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelSearch, listener)
	payload, err := command.SearchPayload(ch.ID, query, offset, limit)
	if err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	if err := c.sender.Send(command.Search, payload); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// SendTokenNotify notifies the server of an intent to play.
func (c *Client) SendTokenNotify() error {
	return c.sender.Send(command.TokenNotify, command.TokenNotifyPayload())
}

// RequestKey opens an AESKEY channel and sends REQKEY for fileID/trackID.
func (c *Client) RequestKey(fileID [20]byte, trackID [16]byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelAESKey, listener)
	if err := c.sender.Send(command.ReqKey, command.ReqKeyPayload(ch.ID, fileID, trackID)); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// SendRequestPlay notifies the server of intent to play (REQUESTPLAY).
func (c *Client) SendRequestPlay() error {
	return c.sender.Send(command.RequestPlay, command.RequestPlayPayload())
}

// RequestSubstream opens a SUBSTREAM channel and requests the byte
// range [offset, offset+length).
func (c *Client) RequestSubstream(fileID [20]byte, offset, length uint32, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelSubstream, listener)
	payload, err := command.GetSubstreamPayload(ch.ID, fileID, offset, length)
	if err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	if err := c.sender.Send(command.GetSubstream, payload); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// Browse opens a BROWSE channel and requests metadata for ids.
func (c *Client) Browse(browseType byte, ids [][16]byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelBrowse, listener)
	payload, err := command.BrowsePayload(ch.ID, browseType, ids)
	if err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	if err := c.sender.Send(command.Browse, payload); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// GetPlaylist opens a PLAYLIST channel and requests playlistID's details.
func (c *Client) GetPlaylist(playlistID [17]byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelPlaylist, listener)
	if err := c.sender.Send(command.GetPlaylist, command.GetPlaylistPayload(ch.ID, playlistID)); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}

// ChangePlaylist opens a PLAYLIST channel and submits an edit.
func (c *Client) ChangePlaylist(playlistID [17]byte, revision, trackCount, checksum uint32, collaborative bool, xml []byte, listener domain.Listener) (*channel.Channel, error) {
	ch := c.registry.Open(domain.ChannelPlaylist, listener)
	payload := command.ChangePlaylistPayload(ch.ID, playlistID, revision, trackCount, checksum, collaborative, xml)
	if err := c.sender.Send(command.ChangePlaylist, payload); err != nil {
		c.registry.Retire(ch.ID)
		return nil, err
	}
	return ch, nil
}
