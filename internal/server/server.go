package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-tuneroom/internal/stats"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	statRoomsOwned      = "RoomsOwned"
	statSessionsActive  = "SessionsActive"
	statMessagesRelayed = "MessagesRelayed"
	statTracksStarted   = "TracksStarted"
)

const (
	numClaimWorkers = 4
	claimBackoffMin = 250 * time.Millisecond
	claimBackoffMax = 5 * time.Second
)

// RoomServer runs the claim workers that compete for offered rooms and
// hands accepted websocket connections off to session clients. A room
// claimed by this process is driven by a dedicated orchestrator until
// the claim is lost or the server shuts down.
type RoomServer struct {
	db     store.Repository
	player PlaybackClient
	clock  Clock
	stats  stats.StatsProvider
	log    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRoomServer(db store.Repository, player PlaybackClient, clock Clock, statsProvider stats.StatsProvider, logger *logrus.Logger) *RoomServer {
	for _, name := range []string{statRoomsOwned, statSessionsActive, statMessagesRelayed, statTracksStarted} {
		statsProvider.RegisterMetric(name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RoomServer{
		db:     db,
		player: player,
		clock:  clock,
		stats:  statsProvider,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < numClaimWorkers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.claimLoop(id)
		}(i)
	}

	return s
}

// claimLoop competes for offered rooms. Losing a claim race and an
// empty offer queue are both routine; only store failures back off.
func (s *RoomServer) claimLoop(id int) {
	log := s.log.WithField("claim_worker", id)
	backoff := claimBackoffMin

	for s.ctx.Err() == nil {
		roomId, err := s.db.ClaimRoom(s.ctx)
		switch {
		case errors.Is(err, store.ErrNoOffer), errors.Is(err, store.ErrNotClaimed):
			backoff = claimBackoffMin
			continue
		case err != nil:
			if s.ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("claiming room failed")
			if s.clock.Sleep(s.ctx, backoff) != nil {
				return
			}
			backoff *= 2
			if backoff > claimBackoffMax {
				backoff = claimBackoffMax
			}
			continue
		}

		backoff = claimBackoffMin
		orch := newOrchestrator(roomId, s.db, s.player, s.clock, s.stats, s.log)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			orch.run(s.ctx)
		}()
	}
}

// ServeConn takes ownership of an upgraded websocket connection and
// runs a session for it.
func (s *RoomServer) ServeConn(conn *websocket.Conn, roomId, userId string) {
	client := NewClient(conn, roomId, userId, s.db, s.stats, s.log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.Run(s.ctx)
	}()
}

// Shutdown stops the claim workers, releases owned rooms and waits for
// all sessions to end.
func (s *RoomServer) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
