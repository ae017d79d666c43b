package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type (
	connectedMsg     struct{}
	incomingMsg      ChatMessage
	errorMsg         error
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	noticeMsg        string
	loggedOutMsg     struct{}

	authOKMsg struct {
		username string
		token    string
		userID   int64
	}
	authFailedMsg struct{ err error }

	forumsMsg struct {
		forums []forumEntry
		err    error
	}
	forumCreatedMsg struct {
		forum forumEntry
		err   error
	}
	historyMsg struct {
		messages []ChatMessage
		err      error
	}
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeSocket()
			return model, tea.Quit
		}
		return model.handleKey(typedMessage)

	case authOKMsg:
		model.loading = false
		model.username = typedMessage.username
		model.token = typedMessage.token
		model.userID = typedMessage.userID
		_ = saveSessionToDisk(model.sessionPath, sessionFile{
			Username: model.username,
			Token:    model.token,
			UserID:   model.userID,
		})
		model.mode = modeForums
		model.loading = true
		model.resetInput()
		return model, model.forumsCmd()

	case authFailedMsg:
		model.loading = false
		model.addNotice("Login failed: " + typedMessage.err.Error())
		model.mode = modeAuthMenu
		model.resetInput()
		return model, nil

	case loggedOutMsg:
		model.token = ""
		model.userID = 0
		model.forums = nil
		model.mode = modeAuthMenu
		model.resetInput()
		return model, nil

	case forumsMsg:
		model.loading = false
		if typedMessage.err != nil {
			if typedMessage.err == errUnauthorized {
				_ = deleteSessionFile(model.sessionPath)
				model.mode = modeAuthMenu
				model.addNotice("Session expired, please log in again.")
				return model, nil
			}
			model.addNotice("Could not load forums: " + typedMessage.err.Error())
			return model, nil
		}
		model.forums = typedMessage.forums
		if model.selectedForum >= len(model.forums) {
			model.selectedForum = 0
		}
		return model, nil

	case forumCreatedMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.addNotice("Could not create forum: " + typedMessage.err.Error())
			model.mode = modeForums
			model.resetInput()
			return model, nil
		}
		model.addNotice(fmt.Sprintf("Forum %q created.", typedMessage.forum.Name))
		model.mode = modeForums
		model.resetInput()
		model.loading = true
		return model, model.forumsCmd()

	case historyMsg:
		if typedMessage.err == nil {
			model.messages = append(typedMessage.messages, model.messages...)
		}
		return model, nil

	case connectedMsg:
		model.isConnected = true
		model.connectionError = nil
		return model, model.readOnceCmd()

	case incomingMsg:
		model.messages = append(model.messages, ChatMessage(typedMessage))
		return model, model.readOnceCmd()

	case noticeMsg:
		model.addNotice(string(typedMessage))
		return model, model.readOnceCmd()

	case errorMsg:
		if model.mode == modeChat {
			model.isConnected = false
			model.connectionError = typedMessage
			return model, model.scheduleReconnect()
		}
		return model, nil

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch model.mode {
	case modeAuthMenu:
		switch key.String() {
		case "1", "l", "L":
			model.authIntent = authIntentLogin
			return model, model.promptFor(modeAuthUsername, "Enter username…", "name> ", model.username)
		case "2", "s", "S":
			model.authIntent = authIntentSignup
			return model, model.promptFor(modeAuthUsername, "Enter username…", "name> ", model.username)
		case "q", "Q":
			return model, tea.Quit
		}
		return model, nil

	case modeAuthUsername:
		switch key.Type {
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if trimmed == "" {
				return model, nil
			}
			model.pendingUsername = trimmed
			if model.authIntent == authIntentSignup {
				return model, model.promptFor(modeAuthEmail, "Enter email…", "email> ", "")
			}
			return model, model.promptForPassword()
		case tea.KeyEsc:
			model.mode = modeAuthMenu
			model.resetInput()
			return model, nil
		}
		return model.updateInput(key)

	case modeAuthEmail:
		switch key.Type {
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if trimmed == "" {
				return model, nil
			}
			model.pendingEmail = trimmed
			return model, model.promptForPassword()
		case tea.KeyEsc:
			model.mode = modeAuthMenu
			model.resetInput()
			return model, nil
		}
		return model.updateInput(key)

	case modeAuthPassword:
		switch key.Type {
		case tea.KeyEnter:
			password := model.textInput.Value()
			if strings.TrimSpace(password) == "" {
				return model, nil
			}
			model.loading = true
			model.resetInput()
			if model.authIntent == authIntentSignup {
				return model, model.signupCmd(model.pendingUsername, model.pendingEmail, password)
			}
			return model, model.loginCmd(model.pendingUsername, password)
		case tea.KeyEsc:
			model.mode = modeAuthMenu
			model.resetInput()
			return model, nil
		}
		return model.updateInput(key)

	case modeForums:
		switch key.String() {
		case "up", "k":
			if model.selectedForum > 0 {
				model.selectedForum--
			}
			return model, nil
		case "down", "j":
			if model.selectedForum < len(model.forums)-1 {
				model.selectedForum++
			}
			return model, nil
		case "enter":
			if len(model.forums) == 0 {
				return model, nil
			}
			model.activeForum = model.forums[model.selectedForum]
			model.messages = model.messages[:0]
			model.mode = modeChat
			model.isConnected = false
			model.connectionError = nil
			focusCmd := model.promptFor(modeChat, "Type a message…", "> ", "")
			return model, tea.Batch(focusCmd, model.connectCmd(), model.historyCmd(model.activeForum.ID))
		case "n", "N":
			return model, model.promptFor(modeCreateForum, "name | tag", "forum> ", "")
		case "r", "R":
			model.loading = true
			return model, model.forumsCmd()
		case "l", "L":
			return model, model.logoutCmd()
		case "q", "Q":
			return model, tea.Quit
		}
		return model, nil

	case modeCreateForum:
		switch key.Type {
		case tea.KeyEnter:
			value := strings.TrimSpace(model.textInput.Value())
			if value == "" {
				return model, nil
			}
			name, tag := value, ""
			if idx := strings.Index(value, "|"); idx >= 0 {
				name = strings.TrimSpace(value[:idx])
				tag = strings.TrimSpace(value[idx+1:])
			}
			if name == "" {
				return model, nil
			}
			model.loading = true
			return model, model.createForumCmd(name, tag)
		case tea.KeyEsc:
			model.mode = modeForums
			model.resetInput()
			return model, nil
		}
		return model.updateInput(key)

	case modeChat:
		switch key.Type {
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if strings.EqualFold(trimmed, "/leave") {
				model.leaveChat()
				model.loading = true
				return model, model.forumsCmd()
			}
			if trimmed != "" && model.isConnected {
				return model, model.sendCmd(trimmed)
			}
			return model, nil
		case tea.KeyEsc:
			model.leaveChat()
			model.loading = true
			return model, model.forumsCmd()
		}
		return model.updateInput(key)
	}
	return model, nil
}

func (model *TUIModel) updateInput(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) promptFor(mode appMode, placeholder, prompt, value string) tea.Cmd {
	model.mode = mode
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.SetValue(value)
	model.textInput.Placeholder = placeholder
	model.textInput.Prompt = prompt
	return model.textInput.Focus()
}

func (model *TUIModel) promptForPassword() tea.Cmd {
	cmd := model.promptFor(modeAuthPassword, "Enter password…", "pass> ", "")
	model.textInput.EchoMode = textinput.EchoPassword
	return cmd
}

func (model *TUIModel) resetInput() {
	model.textInput.SetValue("")
	model.textInput.Blur()
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
	model.textInput.EchoMode = textinput.EchoNormal
}

func (model *TUIModel) leaveChat() {
	model.closeSocket()
	model.isConnected = false
	model.connectionError = nil
	model.mode = modeForums
	model.resetInput()
}

func (model *TUIModel) closeSocket() {
	if model.websocketConn != nil {
		_ = model.websocketConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = model.websocketConn.Close()
		model.websocketConn = nil
	}
}

func (model *TUIModel) addNotice(text string) {
	model.notices = append(model.notices, text)
	if len(model.notices) > 5 {
		model.notices = model.notices[len(model.notices)-5:]
	}
}
