package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"ringring-backend/internal/client/api"
	"ringring-backend/internal/client/media"
	"ringring-backend/internal/client/media/device"
	"ringring-backend/internal/client/prefs"
	"ringring-backend/internal/client/session"
	"ringring-backend/internal/domain"
	"ringring-backend/pkg/logger"
)

const usage = `Commands:
  online                              list online users
  call <userId|ring number> [audio]   start a video (or audio) call
  accept | reject                     answer a ringing call
  mute | video                        toggle microphone or camera
  end                                 hang up
  devices                             list capture devices
  prefs [audio|video <deviceId>]      show or set device preferences
  quit`

type console struct {
	ctrl   *session.Controller
	rest   *api.Client
	store  *prefs.Store
	source *device.Source
	roster *session.Roster
	self   session.Party
}

func runConsole(ctx context.Context, quit context.CancelFunc, c *console) {
	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			break
		}
		if err := c.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Printf("%s: %v\n", fields[0], err)
		}
	}
	quit()
}

func (c *console) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "online":
		for _, u := range c.roster.Online() {
			if u.UserID != c.self.ID {
				fmt.Printf("  %s  %s\n", u.UserID, u.Name)
			}
		}
		return nil
	case "call":
		if len(args) == 0 {
			return fmt.Errorf("usage: call <userId|ring number> [audio]")
		}
		callType := domain.CallTypeVideo
		if len(args) > 1 && args[1] == "audio" {
			callType = domain.CallTypeAudio
		}
		receiver, err := c.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		// media acquisition may wait on device permission
		go func() {
			if err := c.ctrl.InitiateCall(ctx, receiver, c.self, callType); err != nil {
				fmt.Printf("call: %v\n", err)
			}
		}()
		return nil
	case "accept":
		go func() {
			if err := c.ctrl.AcceptCall(ctx, c.self); err != nil {
				fmt.Printf("accept: %v\n", err)
			}
		}()
		return nil
	case "reject":
		return c.ctrl.RejectCall("")
	case "mute":
		return c.ctrl.ToggleMute()
	case "video":
		return c.ctrl.ToggleVideo()
	case "end":
		c.ctrl.EndCall()
		return nil
	case "devices":
		for _, d := range c.source.Devices() {
			fmt.Printf("  %-6s %s  %s\n", d.Kind, d.ID, d.Label)
		}
		return nil
	case "prefs":
		return c.prefs(ctx, args)
	case "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command, type 'help'")
	}
}

// resolve turns a ring number or an online user id into the call target
func (c *console) resolve(ctx context.Context, target string) (session.Party, error) {
	if api.IsRingNumber(target) {
		u, err := c.rest.LookupRingNumber(ctx, target)
		if err != nil {
			return session.Party{}, err
		}
		return session.Party{ID: u.UserID.String(), Name: u.Name, Avatar: u.Avatar}, nil
	}
	if u, ok := c.roster.Lookup(target); ok {
		return session.Party{ID: u.UserID, Name: u.Name, Avatar: u.Avatar}, nil
	}
	// offline users still get a call:error from the server
	return session.Party{ID: target, Name: target}, nil
}

func (c *console) prefs(ctx context.Context, args []string) error {
	p, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Printf("  audio=%q video=%q echoCancellation=%t noiseSuppression=%t autoGainControl=%t\n",
			p.AudioDeviceID, p.VideoDeviceID, p.EchoCancellation, p.NoiseSuppression, p.AutoGainControl)
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: prefs audio|video <deviceId>")
	}
	switch media.Kind(args[0]) {
	case media.KindAudio:
		p.AudioDeviceID = args[1]
	case media.KindVideo:
		p.VideoDeviceID = args[1]
	default:
		return fmt.Errorf("unknown kind %q", args[0])
	}
	if err := c.store.Save(ctx, p); err != nil {
		return err
	}
	logger.Info("Saved media preferences", zap.String("kind", args[0]), zap.String("device_id", args[1]))
	return nil
}
