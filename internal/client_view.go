package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	forumSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	forumItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	tagStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	replyStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthEmail, modeAuthPassword:
		return model.renderAuthPromptView()
	case modeForums:
		return model.renderForumsView()
	case modeCreateForum:
		return model.renderPrompt("Create a forum", "Enter \"name | tag\" and press Enter.")
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("Forumhub")
	subtitle := subtitleStyle.Render("Forums and live chat from your terminal")

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	hint := "Enter your username"
	switch model.mode {
	case modeAuthEmail:
		hint = "Enter your email"
	case modeAuthPassword:
		hint = "Enter your password"
	}
	return model.renderPrompt(title, hint)
}

func (model *TUIModel) renderPrompt(title, hint string) string {
	header := appTitleStyle.Render(title)
	hintText := menuHintStyle.Render(hint)

	viewSections := []string{header, hintText}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderForumsView() string {
	title := appTitleStyle.Render(fmt.Sprintf("Welcome, %s", model.username))
	subtitle := subtitleStyle.Render(fmt.Sprintf("Joined forums: %d", len(model.forums)))

	viewSections := []string{title, subtitle}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Loading forums…"))
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	var forumLines []string
	if len(model.forums) == 0 {
		forumLines = append(forumLines, menuHintStyle.Render("No forums yet. Press N to create one."))
	} else {
		for idx, forum := range model.forums {
			label := forum.Name
			if forum.Tag != "" {
				label += " " + tagStyle.Render("#"+forum.Tag)
			}
			if idx == model.selectedForum {
				forumLines = append(forumLines, forumSelectedStyle.Render("➤ "+label))
			} else {
				forumLines = append(forumLines, forumItemStyle.Render("  "+label))
			}
		}
	}
	viewSections = append(viewSections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, forumLines...)))

	hints := menuHintStyle.Render("↑/↓ select • Enter chat • N new forum • R refresh • L logout • Q quit")
	viewSections = append(viewSections, hints)

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatView() string {
	headerSegments := []string{"Forumhub"}
	if model.activeForum.Name != "" {
		headerSegments = append(headerSegments, model.activeForum.Name)
	}
	headerSegments = append(headerSegments, fmt.Sprintf("User %s", model.username))
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, chat := range model.messages {
		messageLines = append(messageLines, model.renderChatMessage(chat))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	messagesView := messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...))
	inputView := inputBoxStyle.Render(model.textInput.View())
	footerHint := menuHintStyle.Render("Esc or /leave to return to forums")

	sections := []string{header}
	if statusLine != "" {
		sections = append(sections, statusLine)
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, messagesView, inputView, footerHint)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func (model *TUIModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(model.notices))
	for _, notice := range model.notices {
		lines = append(lines, systemMessageStyle.Render(notice))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderChatMessage renders a single log line. It stamps the timestamp,
// picks a color for the sender, and indents multi-line messages.
func (model *TUIModel) renderChatMessage(chat ChatMessage) string {
	stamp := chat.CreatedAt
	if parsed, err := time.Parse(time.RFC3339, chat.CreatedAt); err == nil {
		stamp = parsed.Local().Format("15:04:05")
	}
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", stamp))

	var nameStyle lipgloss.Style
	if chat.Username == model.username {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(chat.Username))
	}
	name := nameStyle.Render(chat.Username)

	var parts []string
	if chat.ReplyPreview != nil {
		parts = append(parts, replyStyle.Render(fmt.Sprintf("↳ %s: %s", chat.ReplyPreview.Username, chat.ReplyPreview.Content)))
	}
	body := chat.Content
	if chat.FileURL != nil {
		body = strings.TrimSpace(body + " [" + *chat.FileURL + "]")
	}
	bodyText := messageBodyStyle.Render(strings.ReplaceAll(body, "\n", "\n   "))
	parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", bodyText))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
