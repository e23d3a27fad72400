package usecases

import (
	"context"
	"fmt"
	"strings"

	"project_handoff/internal/interfaces"
)

// RuleResponder answers without an AI service.
// Priority: 1. Greeting → 2. MENU → 3. Menu item → 4. Default
type RuleResponder struct {
	config interfaces.ConfigStore
}

func NewRuleResponder(config interfaces.ConfigStore) *RuleResponder {
	return &RuleResponder{config: config}
}

func (r *RuleResponder) GenerateResponse(ctx context.Context, _ string, message string) (string, error) {
	content := strings.TrimSpace(message)
	contentLower := strings.ToLower(content)

	if isGreeting(contentLower) {
		return r.welcomeMessage(ctx), nil
	}
	if isMenuCommand(contentLower) {
		return r.menuList(ctx), nil
	}
	if reply, ok := r.menuReply(ctx, content); ok {
		return reply, nil
	}
	return defaultResponse, nil
}

func isGreeting(content string) bool {
	greetings := []string{"halo", "hai", "hello", "hi", "selamat pagi", "selamat siang", "selamat sore", "selamat malam", "assalamualaikum", "start", "/start"}
	for _, g := range greetings {
		if content == g || strings.HasPrefix(content, g+" ") {
			return true
		}
	}
	return false
}

func isMenuCommand(content string) bool {
	menuCommands := []string{"menu", "help", "?", "daftar", "pilihan", "opsi"}
	for _, cmd := range menuCommands {
		if content == cmd || strings.HasPrefix(content, cmd+" ") {
			return true
		}
	}
	return false
}

const defaultWelcome = "👋 *Selamat datang!*\n\nSaya adalah asisten virtual.\nKetik *MENU* untuk melihat pilihan yang tersedia."

const defaultResponse = "🤔 Maaf, saya tidak mengerti pesan Anda.\n\n" +
	"Silakan coba:\n" +
	"• Ketik *MENU* untuk melihat pilihan\n" +
	"• Atau tunggu, admin kami akan segera membalas"

func (r *RuleResponder) welcomeMessage(ctx context.Context) string {
	if r.config != nil {
		if welcome, err := r.config.GetConfig(ctx, "welcome_message"); err == nil && welcome != "" {
			return welcome
		}
	}
	return defaultWelcome
}

func (r *RuleResponder) menuList(ctx context.Context) string {
	if r.config == nil {
		return "Menu tidak tersedia."
	}
	menus, err := r.config.GetAllMenus(ctx)
	if err != nil || len(menus) == 0 {
		return "📋 *Menu*\n\nBelum ada menu yang dikonfigurasi.\nHubungi admin untuk setup."
	}

	var sb strings.Builder
	sb.WriteString("📋 *Menu Tersedia:*\n\n")
	for i, menu := range menus {
		sb.WriteString(fmt.Sprintf("%d. *%s*\n", i+1, menu.Title))
		for _, item := range menu.ParseItems() {
			sb.WriteString(fmt.Sprintf("   • %s\n", item.Label))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("_Ketik nama menu atau pilihan untuk melanjutkan_")
	return sb.String()
}

// menuReply matches content against menu item labels.
func (r *RuleResponder) menuReply(ctx context.Context, content string) (string, bool) {
	if r.config == nil {
		return "", false
	}
	menus, err := r.config.GetAllMenus(ctx)
	if err != nil {
		return "", false
	}
	for _, menu := range menus {
		for _, item := range menu.ParseItems() {
			if item.Action == "reply" && strings.EqualFold(item.Label, content) {
				return item.Payload, true
			}
		}
	}
	return "", false
}
