package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) signupCmd(username, email, password string) tea.Cmd {
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err != nil {
			return authFailedMsg{err: err}
		}
		if err := apiSignup(base, username, email, password); err != nil {
			return authFailedMsg{err: err}
		}
		resp, err := apiLogin(base, username, password)
		if err != nil {
			return authFailedMsg{err: err}
		}
		return authOKMsg{username: resp.Username, token: resp.Token, userID: resp.UserID}
	}
}

func (model *TUIModel) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err != nil {
			return authFailedMsg{err: err}
		}
		resp, err := apiLogin(base, username, password)
		if err != nil {
			return authFailedMsg{err: err}
		}
		return authOKMsg{username: resp.Username, token: resp.Token, userID: resp.UserID}
	}
}

func (model *TUIModel) logoutCmd() tea.Cmd {
	token := model.token
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err == nil {
			_ = apiLogout(base, token)
		}
		_ = deleteSessionFile(model.sessionPath)
		return loggedOutMsg{}
	}
}

func (model *TUIModel) forumsCmd() tea.Cmd {
	token := model.token
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err != nil {
			return forumsMsg{err: err}
		}
		forums, err := apiJoinedForums(base, token)
		return forumsMsg{forums: forums, err: err}
	}
}

func (model *TUIModel) createForumCmd(name, tag string) tea.Cmd {
	token := model.token
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err != nil {
			return forumCreatedMsg{err: err}
		}
		forum, err := apiCreateForum(base, token, name, tag)
		return forumCreatedMsg{forum: forum, err: err}
	}
}

func (model *TUIModel) historyCmd(forumID int64) tea.Cmd {
	token := model.token
	return func() tea.Msg {
		base, err := httpBaseFromServerURL(model.serverURL)
		if err != nil {
			return historyMsg{err: err}
		}
		messages, err := apiForumHistory(base, token, forumID)
		return historyMsg{messages: messages, err: err}
	}
}

func (model *TUIModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		wsURL, err := wsURLFromServerURL(model.serverURL, model.activeForum.ID, model.token)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		model.websocketConn = conn
		return connectedMsg{}
	}
}

func (model *TUIModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		messageType, payload, err := model.websocketConn.ReadMessage()
		if err != nil {
			return errorMsg(err)
		}
		if messageType != websocket.TextMessage {
			return nil
		}
		var chat ChatMessage
		if err := json.Unmarshal(payload, &chat); err == nil && chat.MessageID != 0 {
			return incomingMsg(chat)
		}
		var serverErr errorFrame
		if err := json.Unmarshal(payload, &serverErr); err == nil && serverErr.Type == "error" {
			return noticeMsg(serverErr.Error)
		}
		return noticeMsg(string(payload))
	}
}

func (model *TUIModel) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		frame := inboundChat{UserID: model.userID, User: model.username, Content: content}
		encoded, err := json.Marshal(frame)
		if err != nil {
			return errorMsg(err)
		}
		model.writeMutex.Lock()
		err = model.websocketConn.WriteMessage(websocket.TextMessage, encoded)
		model.writeMutex.Unlock()
		if err != nil {
			return errorMsg(err)
		}
		model.textInput.SetValue("")
		return nil
	}
}
