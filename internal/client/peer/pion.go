package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"ringring-backend/internal/client/media"
	"ringring-backend/pkg/logger"
)

// CodecRegistrar prepares a media engine for the tracks a capture source
// produces
type CodecRegistrar interface {
	RegisterCodecs(me *webrtc.MediaEngine) error
}

// localTrack is implemented by capture tracks that can be sent over WebRTC
type localTrack interface {
	TrackLocal() webrtc.TrackLocal
}

// NewAPI builds a WebRTC API with the source's codecs and the default
// interceptors (NACK, RTCP reports, TWCC). A nil codecs registers the
// default codec set.
func NewAPI(codecs CodecRegistrar) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if codecs != nil {
		if err := codecs.RegisterCodecs(mediaEngine); err != nil {
			return nil, fmt.Errorf("failed to register codecs: %w", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	// The session applies its own 5s disconnect grace on top of these
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(5*time.Second, 25*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// ICEServers turns STUN/TURN urls into a WebRTC configuration entry
func ICEServers(urls []string, username, credential string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	server := webrtc.ICEServer{URLs: urls}
	if username != "" {
		server.Username = username
		server.Credential = credential
	}
	return []webrtc.ICEServer{server}
}

// PionTransport is a Transport over a pion PeerConnection
type PionTransport struct {
	pc *webrtc.PeerConnection

	mu         sync.Mutex
	senders    map[media.Kind]*webrtc.RTPSender
	locals     map[media.Kind]webrtc.TrackLocal
	encoders   map[media.Kind]media.EncoderControl
	videoSSRC  uint32
	onTrack    func(RemoteTrack)
	closedOnce sync.Once
}

// NewPionTransport opens a PeerConnection
func NewPionTransport(api *webrtc.API, iceServers []webrtc.ICEServer) (*PionTransport, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &PionTransport{
		pc:       pc,
		senders:  make(map[media.Kind]*webrtc.RTPSender),
		locals:   make(map[media.Kind]webrtc.TrackLocal),
		encoders: make(map[media.Kind]media.EncoderControl),
	}
	pc.OnTrack(t.handleTrack)
	return t, nil
}

func (t *PionTransport) AddTrack(track media.Track) error {
	lt, ok := track.(localTrack)
	if !ok {
		return t.AddReceiveOnly(track.Kind())
	}

	sender, err := t.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}

	encoder, _ := track.(media.EncoderControl)

	t.mu.Lock()
	t.senders[track.Kind()] = sender
	t.locals[track.Kind()] = lt.TrackLocal()
	if encoder != nil {
		t.encoders[track.Kind()] = encoder
	}
	t.mu.Unlock()

	// Incoming RTCP must be read for interceptors to process it
	go func() {
		for {
			pkts, _, err := sender.ReadRTCP()
			if err != nil {
				return
			}
			if encoder != nil && wantsKeyFrame(pkts) {
				if err := encoder.RequestKeyFrame(); err != nil {
					logger.Debug("Key frame request ignored", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

func wantsKeyFrame(pkts []rtcp.Packet) bool {
	for _, p := range pkts {
		switch p.(type) {
		case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
			return true
		}
	}
	return false
}

func (t *PionTransport) AddReceiveOnly(kind media.Kind) error {
	_, err := t.pc.AddTransceiverFromKind(codecType(kind), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
	}
	return nil
}

// SetTrackEnabled detaches the local track from its sender while disabled
func (t *PionTransport) SetTrackEnabled(kind media.Kind, enabled bool) error {
	t.mu.Lock()
	sender := t.senders[kind]
	local := t.locals[kind]
	t.mu.Unlock()

	if sender == nil {
		return nil
	}
	if !enabled {
		local = nil
	}
	return sender.ReplaceTrack(local)
}

func (t *PionTransport) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
}

func (t *PionTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PionTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *PionTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *PionTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *PionTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (t *PionTransport) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	t.pc.OnICEConnectionStateChange(fn)
}

func (t *PionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *PionTransport) OnTrack(fn func(RemoteTrack)) {
	t.mu.Lock()
	t.onTrack = fn
	t.mu.Unlock()
}

func (t *PionTransport) handleTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := media.KindAudio
	if remote.Kind() == webrtc.RTPCodecTypeVideo {
		kind = media.KindVideo
	}

	t.mu.Lock()
	if kind == media.KindVideo {
		t.videoSSRC = uint32(remote.SSRC())
	}
	fn := t.onTrack
	t.mu.Unlock()

	logger.Info("Remote track started",
		zap.String("kind", string(kind)),
		zap.String("codec", remote.Codec().MimeType))
	if fn != nil {
		fn(RemoteTrack{ID: remote.ID(), Kind: kind})
	}

	// Playback is out of scope for the headless client; reading keeps the
	// receive stats and RTCP feedback going.
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

func (t *PionTransport) InboundVideoLoss() (int64, int64, bool) {
	var lost, received int64
	found := false
	for _, s := range t.pc.GetStats() {
		in, ok := s.(webrtc.InboundRTPStreamStats)
		if !ok || in.Kind != string(media.KindVideo) {
			continue
		}
		found = true
		lost += int64(in.PacketsLost)
		received += int64(in.PacketsReceived)
	}
	return lost, received, found
}

func (t *PionTransport) CapRemoteBitrate(bps int) error {
	t.mu.Lock()
	ssrc := t.videoSSRC
	t.mu.Unlock()

	if ssrc == 0 {
		return errors.New("no inbound video stream")
	}
	return t.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.ReceiverEstimatedMaximumBitrate{
			Bitrate: float32(bps),
			SSRCs:   []uint32{ssrc},
		},
	})
}

// CapLocalBitrate retunes the local video encoder when the capture track
// exposes one
func (t *PionTransport) CapLocalBitrate(bps int) error {
	t.mu.Lock()
	encoder := t.encoders[media.KindVideo]
	t.mu.Unlock()

	if encoder == nil {
		return media.ErrNoEncoderControl
	}
	return encoder.SetBitrate(bps)
}

func (t *PionTransport) Close() error {
	var err error
	t.closedOnce.Do(func() {
		err = t.pc.Close()
	})
	return err
}

func codecType(kind media.Kind) webrtc.RTPCodecType {
	if kind == media.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}
