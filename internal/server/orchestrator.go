package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/npezzotti/go-tuneroom/internal/provider"
	"github.com/npezzotti/go-tuneroom/internal/stats"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	// claimRenewInterval keeps a renewal's slack to one missed cycle
	// before the 5s claim TTL expires.
	claimRenewInterval = 3 * time.Second

	// deviceGuardDelay tolerates the provider-side lag between a device
	// registering and it accepting playback commands. Commands issued
	// immediately after a device change are often refused.
	deviceGuardDelay = 3 * time.Second

	initialPlayDelay = time.Second
	idlePlayDelay    = time.Second
)

// PlaybackClient is the slice of the music provider the orchestrator
// drives playback through.
type PlaybackClient interface {
	Track(ctx context.Context, userId string, tokens store.TokenPair, trackId string) (*provider.Track, error)
	Play(ctx context.Context, userId string, tokens store.TokenPair, deviceId, trackUri string, positionMs int64) error
}

// orchestrator is the single active driver of one owned room. It renews
// the claim lease, reconciles presence, reacts to device changes and
// advances playback on a self-rescheduling timer.
type orchestrator struct {
	roomId string
	db     store.Repository
	player PlaybackClient
	clock  Clock
	stats  stats.StatsProvider
	log    *logrus.Entry
}

func newOrchestrator(roomId string, db store.Repository, player PlaybackClient, clock Clock, statsProvider stats.StatsProvider, logger *logrus.Logger) *orchestrator {
	return &orchestrator{
		roomId: roomId,
		db:     db,
		player: player,
		clock:  clock,
		stats:  statsProvider,
		log:    logger.WithField("room_id", roomId),
	}
}

func (o *orchestrator) run(ctx context.Context) {
	o.log.Info("serving claimed room")
	o.stats.Incr(statRoomsOwned)
	defer o.stats.Decr(statRoomsOwned)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		o.trackPresence(ctx)
	}()
	go func() {
		defer wg.Done()
		o.watchDeviceChanges(ctx)
	}()

	renew := o.clock.NewTimer(claimRenewInterval)
	defer renew.Stop()
	play := o.clock.NewTimer(initialPlayDelay)
	defer play.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-renew.C():
			if err := o.db.RenewClaim(ctx, o.roomId); err != nil {
				o.log.WithError(err).Error("renewing claim failed, releasing room")
				break loop
			}
			renew.Reset(claimRenewInterval)
		case <-play.C():
			delay, err := o.advancePlayback(ctx)
			if err != nil {
				o.log.WithError(err).Error("advancing playback failed, releasing room")
				break loop
			}
			play.Reset(delay)
		}
	}

	cancel()
	wg.Wait()

	// The claim lease will expire on its own; re-offering means another
	// worker picks the room up without waiting for a session to act.
	if err := o.db.OfferRoom(context.Background(), o.roomId); err != nil {
		o.log.WithError(err).Warn("failed to re-offer released room")
	}
	o.log.Info("released room")
}

// trackPresence maintains the materialized presence set from lease
// lifecycle notifications. The set is a cache; the live leases stay the
// source of truth.
func (o *orchestrator) trackPresence(ctx context.Context) {
	events, err := o.db.SubscribePresence(ctx, o.roomId)
	if err != nil {
		o.log.WithError(err).Error("presence subscription failed")
		return
	}

	// Sessions may have joined before this process claimed the room, so
	// rebuild the cached set from the live leases once at start.
	users, err := o.db.ScanPresence(ctx, o.roomId)
	if err != nil {
		o.log.WithError(err).Error("presence scan failed")
		return
	}
	if err := o.db.ClearPresenceSet(ctx, o.roomId); err != nil {
		o.log.WithError(err).Error("presence set reset failed")
		return
	}
	for _, userId := range users {
		if err := o.db.AddPresenceMember(ctx, o.roomId, userId); err != nil {
			o.log.WithError(err).Error("presence set rebuild failed")
			return
		}
	}
	if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewPresencesChangedEvent()); err != nil {
		o.log.WithError(err).Error("presence reconcile notification failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := o.handlePresenceEvent(ctx, event); err != nil {
				o.log.WithError(err).Error("handling presence event failed")
				return
			}
		}
	}
}

func (o *orchestrator) handlePresenceEvent(ctx context.Context, event store.PresenceEvent) error {
	switch event.Activity {
	case store.PresenceJoin:
		if err := o.db.AddPresenceMember(ctx, o.roomId, event.UserId); err != nil {
			return err
		}
	case store.PresenceLeave:
		if err := o.db.RemovePresenceMember(ctx, o.roomId, event.UserId); err != nil {
			return err
		}
		// A departed user must not block the turn rotation.
		if err := o.db.RemoveTurn(ctx, o.roomId, event.UserId); err != nil {
			return err
		}
	}

	_, err := o.db.AppendEvent(ctx, o.roomId, store.NewPresencesChangedEvent())
	return err
}

// watchDeviceChanges re-synchronizes a user's freshly selected device
// into the middle of the current track.
func (o *orchestrator) watchDeviceChanges(ctx context.Context) {
	events := o.db.SubscribeEvents(ctx, o.roomId)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type != store.EventDeviceChanged {
				continue
			}
			go o.resumeForUser(ctx, event.UserId)
		}
	}
}

func (o *orchestrator) resumeForUser(ctx context.Context, userId string) {
	if err := o.clock.Sleep(ctx, deviceGuardDelay); err != nil {
		return
	}

	playing, err := o.db.GetNowPlaying(ctx, o.roomId)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		o.log.WithError(err).Warn("reading playback state for rejoin failed")
		return
	}

	now := o.clock.Now().UnixMilli()
	if now >= playing.StartTimeMs+playing.LengthMs {
		// Track already finished, nothing to catch up to.
		return
	}

	o.playFor(ctx, userId, playing.TrackId, now-playing.StartTimeMs)
}

// advancePlayback serves one turn and returns the delay until the next
// firing of the playback timer.
func (o *orchestrator) advancePlayback(ctx context.Context) (time.Duration, error) {
	userId, ok, err := o.db.DequeueTurn(ctx, o.roomId)
	if err != nil {
		return 0, err
	}
	if !ok {
		if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewQueueChangedEvent()); err != nil {
			return 0, err
		}
		return idlePlayDelay, nil
	}

	trackId, ok, err := o.db.PopTrack(ctx, o.roomId, userId)
	if err != nil {
		return 0, err
	}
	if !ok {
		// A user with nothing queued is consumed from the rotation for
		// this cycle; they rejoin the queue explicitly.
		if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewQueueChangedEvent()); err != nil {
			return 0, err
		}
		return idlePlayDelay, nil
	}

	if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewUserQueueChangedEvent(userId)); err != nil {
		return 0, err
	}

	tokens, err := o.db.GetAuth(ctx, userId)
	if err != nil {
		o.log.WithField("user_id", userId).WithError(err).Warn("no credentials for turn owner, skipping track")
		if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewQueueChangedEvent()); err != nil {
			return 0, err
		}
		return idlePlayDelay, nil
	}

	present, err := o.db.ListPresences(ctx, o.roomId)
	if err != nil {
		return 0, err
	}

	// Round robin: the served user goes back to the tail.
	if err := o.db.EnqueueTurn(ctx, o.roomId, userId); err != nil {
		return 0, err
	}

	track, err := o.player.Track(ctx, userId, tokens, trackId)
	if err != nil {
		// A metadata failure skips this track, not the room.
		o.log.WithField("track_id", trackId).WithError(err).Warn("track lookup failed, skipping track")
		if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewQueueChangedEvent()); err != nil {
			return 0, err
		}
		return idlePlayDelay, nil
	}

	err = o.db.SetNowPlaying(ctx, o.roomId, store.NowPlaying{
		TrackId:     trackId,
		StartTimeMs: o.clock.Now().UnixMilli(),
		LengthMs:    track.DurationMs,
	})
	if err != nil {
		return 0, err
	}

	if _, err := o.db.AppendEvent(ctx, o.roomId, store.NewQueueChangedEvent()); err != nil {
		return 0, err
	}

	for _, uid := range present {
		o.playFor(ctx, uid, trackId, 0)
	}

	o.stats.Incr(statTracksStarted)
	o.log.WithFields(logrus.Fields{
		"user_id":  userId,
		"track_id": trackId,
	}).Info("started track")

	return time.Duration(track.DurationMs) * time.Millisecond, nil
}

// playFor issues a play command to one user's bound device. Users
// without credentials or a device simply don't get the command.
func (o *orchestrator) playFor(ctx context.Context, userId, trackId string, positionMs int64) {
	tokens, err := o.db.GetAuth(ctx, userId)
	if err != nil {
		o.log.WithField("user_id", userId).WithError(err).Warn("no credentials for playback command")
		return
	}

	deviceId, err := o.db.GetDevice(ctx, userId)
	if err != nil {
		o.log.WithField("user_id", userId).WithError(err).Warn("no device bound for playback command")
		return
	}

	if err := o.player.Play(ctx, userId, tokens, deviceId, trackId, positionMs); err != nil {
		o.log.WithField("user_id", userId).WithError(err).Warn("playback command failed")
	}
}
