// Package scheduling decides when an approved article may be posted.
package scheduling

import (
	"sync"
	"time"

	"NewsRelay/internal/domain"
)

// Policy configures posting windows and spacing.
type Policy struct {
	Location        *time.Location
	OffHours        []int
	PeakHours       []int
	ChannelSpacing  time.Duration
	BurstSpacing    time.Duration
	CategorySpacing time.Duration
}

// DefaultPolicy mirrors the reference posting rhythm.
func DefaultPolicy() Policy {
	return Policy{
		Location:        time.UTC,
		OffHours:        []int{2, 3, 4, 5},
		PeakHours:       []int{7, 8, 9, 11, 12, 13, 17, 18, 19, 20},
		ChannelSpacing:  5 * time.Minute,
		BurstSpacing:    time.Minute,
		CategorySpacing: 30 * time.Minute,
	}
}

// Scheduler tracks last-post times per channel and per category.
type Scheduler struct {
	mu           sync.Mutex
	policy       Policy
	offHours     map[int]bool
	peakHours    map[int]bool
	burst        bool
	lastChannel  map[string]time.Time
	lastCategory map[string]time.Time
	now          func() time.Time
}

// New builds a scheduler. now may be nil.
func New(policy Policy, now func() time.Time) *Scheduler {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		policy:       policy,
		offHours:     hourSet(policy.OffHours),
		peakHours:    hourSet(policy.PeakHours),
		lastChannel:  map[string]time.Time{},
		lastCategory: map[string]time.Time{},
		now:          now,
	}
}

// SetBurstMode toggles burst mode, used while a breaking-news boost is active.
func (s *Scheduler) SetBurstMode(on bool) {
	s.mu.Lock()
	s.burst = on
	s.mu.Unlock()
}

// BurstMode reports whether burst mode is on.
func (s *Scheduler) BurstMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.burst
}

// CanPost evaluates, in order: breaking bypass, off hours, channel spacing
// (halved in peak hours outside burst mode), then category spacing for
// normal priority only.
func (s *Scheduler) CanPost(channel, category string, priority domain.Priority) bool {
	if priority >= domain.PriorityBreaking {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hour := now.In(s.policy.Location).Hour()

	if !s.burst && s.offHours[hour] {
		return false
	}

	if last, ok := s.lastChannel[channel]; ok {
		if now.Sub(last) < s.channelSpacing(hour) {
			return false
		}
	}

	if priority <= domain.PriorityNormal {
		if last, ok := s.lastCategory[category]; ok {
			if now.Sub(last) < s.policy.CategorySpacing {
				return false
			}
		}
	}
	return true
}

// RecordPost stamps the channel and category with the current time.
func (s *Scheduler) RecordPost(channel, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lastChannel[channel] = now
	if category != "" {
		s.lastCategory[category] = now
	}
}

func (s *Scheduler) channelSpacing(hour int) time.Duration {
	if s.burst {
		return s.policy.BurstSpacing
	}
	if s.peakHours[hour] {
		return s.policy.ChannelSpacing / 2
	}
	return s.policy.ChannelSpacing
}

func hourSet(hours []int) map[int]bool {
	set := make(map[int]bool, len(hours))
	for _, h := range hours {
		set[h] = true
	}
	return set
}
