package main

// ─── Messages ────────────────────────────────────────────────────────────────
//
// All messages are internal to the Update loop. Async tea.Cmd functions
// (in commands.go) produce these; Update handles them. Messages with an
// `id` field use generation counters to ignore stale results.

// fileChangedMsg is sent by the fsnotify watcher after debounce.
type fileChangedMsg struct {
	files []string // base filenames of changed .txt files
}

type statusClearMsg struct {
	id int
}

type errMsg struct {
	err error
}

// noticeMsg shows text in the status bar without the error prefix.
type noticeMsg struct {
	text string
}

// updateAvailableMsg is only sent when the manifest has a newer build.
type updateAvailableMsg struct {
	version appVersion
}

// updateCheckedMsg answers a check the user asked for; latest is nil when
// the running build is current or the check failed.
type updateCheckedMsg struct {
	latest *appVersion
}

// downloadStartedMsg hands the model the channels of a running fetch.
type downloadStartedMsg struct {
	id       int
	progress <-chan downloadProgress
	done     <-chan downloadResult
}

type downloadProgressMsg struct {
	id       int
	progress downloadProgress
}

type downloadDoneMsg struct {
	id     int
	result downloadResult
}

type installResultMsg struct {
	err error
}

// changedSpinExpiredMsg ends the spinner on externally changed notes.
type changedSpinExpiredMsg struct {
	id int
}
