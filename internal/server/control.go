package server

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/TheGojiOG/vuserver/internal/logging"
)

// connectLink opens and authenticates the control link for lt. It runs
// once per lifetime, after the scanner has seen the trigger line.
func (s *Supervisor) connectLink(lt *lifetime) {
	defer lt.wg.Done()

	if lt.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(lt.ctx, s.linkTimeout)
	defer cancel()

	link := s.newLink(func(words []string) {
		s.handleEvent(lt, words)
	})

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.opts.RemotePort))
	if err := link.Open(ctx, addr); err != nil {
		if lt.ctx.Err() == nil {
			log.Printf("[Supervisor] Failed to open control link to %s: %v", addr, err)
			s.Log("[Console] RCON: failed to connect: " + err.Error())
		}
		return
	}

	if err := link.Login(ctx, lt.password); err != nil {
		_ = link.Close()
		if lt.ctx.Err() == nil {
			log.Printf("[Supervisor] Control link login failed: %v", err)
			s.Log("[Console] RCON: login failed: " + err.Error())
			s.recordEvent(logging.ActivityControlLinkFailed, "Control link login failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}

	if err := link.EnableEvents(ctx); err != nil {
		log.Printf("[Supervisor] Failed to enable push notifications: %v", err)
	}

	if !lt.publish(link) {
		_ = link.Close()
		return
	}

	log.Printf("[Supervisor] Control link established on %s", addr)
	s.recordEvent(logging.ActivityControlLinkUp, "Control link established", map[string]interface{}{
		"address": addr,
	})
	s.emitRefresh()
}

// handleEvent applies a push notification from lt's link. Notifications
// from a link that no longer belongs to the current lifetime are dropped.
func (s *Supervisor) handleEvent(lt *lifetime, words []string) {
	if s.currentLifetime() != lt {
		return
	}
	if s.tracker.Apply(words) {
		s.emitRefresh()
	}
	s.emitData(words)
}

// CanSendCommands reports whether an authenticated control link is open.
func (s *Supervisor) CanSendCommands() bool {
	lt := s.currentLifetime()
	return lt != nil && lt.session() != nil
}

// SendCommand forwards words over the control link. It returns
// ErrControlLinkUnavailable when there is no open session; a rejected
// request is reported as *rcon.RequestError.
func (s *Supervisor) SendCommand(ctx context.Context, words []string) ([]string, error) {
	lt := s.currentLifetime()
	if lt == nil {
		return nil, ErrControlLinkUnavailable
	}
	link := lt.session()
	if link == nil {
		return nil, ErrControlLinkUnavailable
	}
	return link.SendMessage(ctx, words...)
}
