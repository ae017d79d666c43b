package internal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// TUIModel drives the terminal client through its auth, forum list, and
// chat screens.
type TUIModel struct {
	textInput textinput.Model
	serverURL string

	username string
	token    string
	userID   int64

	forums        []forumEntry
	selectedForum int
	activeForum   forumEntry

	messages []ChatMessage
	notices  []string

	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
	loading         bool

	mode        appMode
	authIntent  authIntent
	sessionPath string

	pendingUsername string
	pendingEmail    string
}

type forumEntry struct {
	ID   int64
	Name string
	Tag  string
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthEmail
	modeAuthPassword
	modeForums
	modeCreateForum
	modeChat
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

func NewTUIModel(serverURL, username string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0
	input.Blur()

	model := &TUIModel{
		textInput:   input,
		serverURL:   serverURL,
		username:    username,
		messages:    make([]ChatMessage, 0, 64),
		mode:        modeAuthMenu,
		sessionPath: defaultSessionPath(),
	}
	return model
}

func defaultSessionPath() string {
	if env := os.Getenv("FORUMHUB_SESSION_PATH"); env != "" {
		return env
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "forumhub", "session.json")
	}
	return filepath.Join(".", ".forumhub", "session.json")
}

func (model *TUIModel) Init() tea.Cmd {
	// A saved session skips the login screens when it still works.
	if session, err := loadSessionFromDisk(model.sessionPath); err == nil {
		model.username = session.Username
		model.token = session.Token
		model.userID = session.UserID
		model.mode = modeForums
		model.loading = true
		return model.forumsCmd()
	}
	return nil
}
