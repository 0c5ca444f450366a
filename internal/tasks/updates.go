package tasks

import "fmt"

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // State machine phase
	UID     string // User the update concerns
	Message string // Human-readable message for display
}

// Phase enumerates the per-user sync state machine.
type Phase int

const (
	Start Phase = iota
	FetchPlaylist
	FetchListens
	Authenticate
	DeleteTracks
	RecordRun
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Start:
		return "start"
	case FetchPlaylist:
		return "fetch_playlist"
	case FetchListens:
		return "fetch_listens"
	case Authenticate:
		return "authenticate"
	case DeleteTracks:
		return "delete_tracks"
	case RecordRun:
		return "record_run"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func fetchPlaylistUpdate(uid string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		UID:     uid,
		Message: "Loading playlist selection...",
	}
}

func fetchListensUpdate(uid string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchListens,
		UID:     uid,
		Message: "Fetching recently played tracks...",
	}
}

func noListensUpdate(uid string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		UID:     uid,
		Message: "No listens, nothing to do",
	}
}

func authenticateUpdate(uid string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Authenticate,
		UID:     uid,
		Message: "Obtaining access token...",
	}
}

func deleteTracksUpdate(uid string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DeleteTracks,
		UID:     uid,
		Message: fmt.Sprintf("Removing %d played tracks from playlist...", count),
	}
}

func recordRunUpdate(uid string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RecordRun,
		UID:     uid,
		Message: "Recording run timestamp...",
	}
}

func failedUpdate(uid string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		UID:     uid,
		Message: fmt.Sprintf("Sync failed: %v", err),
	}
}
