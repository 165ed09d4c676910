package application

import (
	"strings"
	"time"

	"github.com/example/studymates/internal/geo"
)

const (
	maxParticipantsLimit = 50
	maxFocusDuration     = 4 * time.Hour
	maxBreakDuration     = time.Hour
	maxConvenienceTags   = 10
	maxTitleLength       = 200
)

var validSessionTypes = map[SessionType]struct{}{
	SessionTypeDeepWork:     {},
	SessionTypeGroupProject: {},
	SessionTypeRevision:     {},
	SessionTypeCasual:       {},
}

// normalizeSessionInput trims text, applies defaults, and validates the result.
func normalizeSessionInput(input SessionInput) (SessionInput, *ValidationError) {
	vErr := &ValidationError{}

	out := SessionInput{
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Location:        input.Location,
		LocationName:    strings.TrimSpace(input.LocationName),
		SessionType:     SessionType(strings.TrimSpace(string(input.SessionType))),
		ConvenienceTags: normalizeTags(input.ConvenienceTags),
		MaxParticipants: input.MaxParticipants,
		FocusDuration:   input.FocusDuration,
		BreakDuration:   input.BreakDuration,
	}

	if out.SessionType == "" {
		out.SessionType = SessionTypeCasual
	}
	if out.MaxParticipants == 0 {
		out.MaxParticipants = DefaultMaxParticipants
	}
	if out.FocusDuration == 0 {
		out.FocusDuration = DefaultFocusDuration
	}
	if out.BreakDuration == 0 {
		out.BreakDuration = DefaultBreakDuration
	}

	if out.LocationName == "" {
		vErr.add("location_name", "location name is required")
	}
	if !validLocation(out.Location) {
		vErr.add("location", "location must be a valid latitude and longitude")
	}
	if len(out.Title) > maxTitleLength {
		vErr.add("title", "title is too long")
	}
	if _, ok := validSessionTypes[out.SessionType]; !ok {
		vErr.add("session_type", "session type must be one of deep_work, group_project, revision, casual")
	}
	if out.MaxParticipants < 1 || out.MaxParticipants > maxParticipantsLimit {
		vErr.add("max_participants", "max participants must be between 1 and 50")
	}
	if out.FocusDuration < time.Minute || out.FocusDuration > maxFocusDuration {
		vErr.add("pomodoro_duration", "focus duration must be between one minute and four hours")
	}
	if out.BreakDuration < time.Minute || out.BreakDuration > maxBreakDuration {
		vErr.add("break_duration", "break duration must be between one minute and one hour")
	}
	if len(out.ConvenienceTags) > maxConvenienceTags {
		vErr.add("convenience_tags", "at most 10 convenience tags are allowed")
	}

	return out, vErr
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func locationPoint(l Location) geo.Point {
	return geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

func validLocation(l Location) bool {
	return locationPoint(l).Valid() && (l.Accuracy == nil || *l.Accuracy >= 0)
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
