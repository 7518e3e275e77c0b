package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ringring-backend/internal/client/api"
	"ringring-backend/internal/client/media/device"
	"ringring-backend/internal/client/peer"
	"ringring-backend/internal/client/prefs"
	"ringring-backend/internal/client/session"
	"ringring-backend/internal/client/wsclient"
	"ringring-backend/internal/domain"
	"ringring-backend/pkg/config"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/resilience"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := api.NewClient(cfg.APIURL)
	var (
		login    *api.Session
		rejected error
	)
	err = resilience.Retry(ctx, "login", 3, 2*time.Second, func(ctx context.Context) error {
		var err error
		login, err = rest.Login(ctx, cfg.IDToken)
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			// 4xx is final
			rejected = err
			return nil
		}
		return err
	})
	if err == nil {
		err = rejected
	}
	if err != nil {
		logger.Fatal("Login failed", zap.Error(err))
	}
	self := session.Party{
		ID:     login.User.UserID.String(),
		Name:   login.User.Name,
		Avatar: login.User.Avatar,
	}
	logger.Info("Logged in", zap.String("user_id", self.ID), zap.String("name", self.Name))

	store, err := prefs.Open(cfg.PreferencesPath)
	if err != nil {
		logger.Fatal("Failed to open preferences", zap.Error(err))
	}
	defer store.Close()

	source, err := device.NewSource()
	if err != nil {
		logger.Fatal("Failed to initialize media devices", zap.Error(err))
	}
	webrtcAPI, err := peer.NewAPI(source)
	if err != nil {
		logger.Fatal("Failed to initialize WebRTC", zap.Error(err))
	}
	iceServers := peer.ICEServers(cfg.ICEServers, cfg.TURNUsername, cfg.TURNCredential)

	sw := &switchboard{}
	ctrl := session.NewController(sw, source, func(pc peer.Config) (session.Peer, error) {
		tr, err := peer.NewPionTransport(webrtcAPI, iceServers)
		if err != nil {
			return nil, err
		}
		pc.OnRemoteTrack = func(t peer.RemoteTrack) {
			logger.Info("Receiving remote media", zap.String("call_id", pc.CallID), zap.String("kind", string(t.Kind)))
		}
		return peer.New(tr, pc), nil
	}, session.WithPreferences(store))
	defer ctrl.Close()

	roster := session.NewRoster()
	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go logSnapshots(snapshots)

	go runConsole(ctx, stop, &console{
		ctrl:   ctrl,
		rest:   rest,
		store:  store,
		source: source,
		roster: roster,
		self:   self,
	})

	handler := func(env domain.Envelope) {
		if roster.Apply(env) {
			return
		}
		ctrl.HandleMessage(env)
	}

	for ctx.Err() == nil {
		var conn *wsclient.Client
		err := resilience.Retry(ctx, "dial signaling", 5, 2*time.Second, func(ctx context.Context) error {
			var err error
			conn, err = wsclient.Dial(ctx, cfg.SignalingURL, login.Token, handler)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Fatal("Signaling server unreachable", zap.Error(err))
		}

		sw.set(conn)
		if err := conn.Join(self.ID, self.Name, self.Avatar); err != nil {
			logger.Warn("Failed to join", zap.Error(err))
		}
		logger.Info("Connected to signaling server", zap.String("url", cfg.SignalingURL))

		err = conn.Run(ctx)
		sw.set(nil)
		// The server ends our call when the socket drops
		ctrl.EndCall()
		if ctx.Err() != nil {
			break
		}
		logger.Warn("Signaling connection lost, reconnecting", zap.Error(err))
	}

	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rest.Logout(logoutCtx); err != nil {
		logger.Warn("Logout failed", zap.Error(err))
	}
	logger.Info("Call client stopped")
}

// switchboard forwards sends to whichever connection is current
type switchboard struct {
	mu   sync.RWMutex
	conn *wsclient.Client
}

func (s *switchboard) set(c *wsclient.Client) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *switchboard) Send(env domain.Envelope) error {
	s.mu.RLock()
	c := s.conn
	s.mu.RUnlock()
	if c == nil {
		return wsclient.ErrClosed
	}
	return c.Send(env)
}

func logSnapshots(ch <-chan session.Snapshot) {
	for snap := range ch {
		if snap.Error != nil {
			logger.Warn("Call error", zap.String("code", snap.Error.Code), zap.String("message", snap.Error.Message))
		}
		if in := snap.Incoming; in != nil {
			fmt.Printf("Incoming %s call from %s (%s). Type 'accept' or 'reject'.\n", in.CallType, in.CallerName, in.CallerID)
		}
		call := snap.Call
		if !call.IsInCall {
			fmt.Println("Idle")
			continue
		}
		status := "ringing"
		if call.StartTime != nil {
			status = "connected since " + call.StartTime.Format(time.Kitchen)
		}
		remoteName := "unknown"
		if remote := call.Remote(); remote != nil {
			remoteName = remote.Name
		}
		fmt.Printf("[%s] %s call with %s: %s, muted=%t video=%t remoteAudio=%t remoteVideo=%t\n",
			call.CallID, call.CallType, remoteName, status,
			call.IsMuted, call.IsVideoEnabled, call.RemoteAudioEnabled, call.RemoteVideoEnabled)
	}
}
