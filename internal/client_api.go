package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var httpTimeout = 5 * time.Second

type sessionFile struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
}

type forumListResponse struct {
	Forums []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Tag  string `json:"tag"`
	} `json:"forums"`
}

type messageListResponse struct {
	Messages []ChatMessage `json:"messages"`
}

func apiSignup(baseURL, username, email, password string) error {
	payload := map[string]string{"username": username, "email": email, "password": password}
	return doJSONRequest(http.MethodPost, baseURL+"/signup", "", payload, nil)
}

func apiLogin(baseURL, username, password string) (*loginResponse, error) {
	payload := map[string]string{"username": username, "password": password}
	var resp loginResponse
	if err := doJSONRequest(http.MethodPost, baseURL+"/login", "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func apiLogout(baseURL, token string) error {
	return doJSONRequest(http.MethodPost, baseURL+"/logout", token, nil, nil)
}

func apiJoinedForums(baseURL, token string) ([]forumEntry, error) {
	var resp forumListResponse
	if err := doJSONRequest(http.MethodGet, baseURL+"/forum/joined", token, nil, &resp); err != nil {
		return nil, err
	}
	forums := make([]forumEntry, 0, len(resp.Forums))
	for _, f := range resp.Forums {
		forums = append(forums, forumEntry{ID: f.ID, Name: f.Name, Tag: f.Tag})
	}
	return forums, nil
}

func apiCreateForum(baseURL, token, name, tag string) (forumEntry, error) {
	payload := map[string]string{"name": name, "tag": tag}
	var resp struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Tag  string `json:"tag"`
	}
	if err := doJSONRequest(http.MethodPost, baseURL+"/forum/create", token, payload, &resp); err != nil {
		return forumEntry{}, err
	}
	return forumEntry{ID: resp.ID, Name: resp.Name, Tag: resp.Tag}, nil
}

func apiForumHistory(baseURL, token string, forumID int64) ([]ChatMessage, error) {
	endpoint := fmt.Sprintf("%s/forum/%d/messages", baseURL, forumID)
	var resp messageListResponse
	if err := doJSONRequest(http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func doJSONRequest(method, endpoint, token string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// httpBaseFromServerURL strips paths and converts ws schemes to http ones so
// the REST calls can share the websocket URL from the config.
func httpBaseFromServerURL(serverURL string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}

// wsURLFromServerURL builds the chat socket URL for one forum.
func wsURLFromServerURL(serverURL string, forumID int64, token string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = "/chat/ws"
	query := parsed.Query()
	query.Set("forum", fmt.Sprintf("%d", forumID))
	if token != "" {
		query.Set("token", token)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func loadSessionFromDisk(path string) (*sessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session sessionFile
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.Username == "" || session.Token == "" {
		return nil, errors.New("session file incomplete")
	}
	return &session, nil
}

func saveSessionToDisk(path string, session sessionFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func deleteSessionFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
