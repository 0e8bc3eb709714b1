package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/logger"
	"github.com/skalibog/convergd/pkg/models"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI терминальный интерфейс со сводкой по инструментам
type TermUI struct {
	results       map[string]*models.ConvergenceResult
	resultsMutex  sync.RWMutex
	logs          []string
	logsMutex     sync.RWMutex
	config        config.UIConfig
	program       *tea.Program
	selectedIndex int
	width         int
	height        int
	logFile       string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		results: make(map[string]*models.ConvergenceResult),
		logs:    []string{"convergd запущен. Ожидание данных..."},
		config:  cfg,
		width:   120,
		height:  40,
		logFile: "convergd.json.log",
	}

	// Хвост файла логов подтягивается в панель логов по таймеру
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if err := ui.loadLogsFromFile(); err != nil {
				logger.Warn("ошибка загрузки логов", zap.Error(err))
			}
		}
	}()

	return ui
}

// Start запускает цикл UI, блокирует до выхода
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// Stop останавливает UI
func (ui *TermUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
}

// UpdateResult публикует свежий результат по инструменту
func (ui *TermUI) UpdateResult(result *models.ConvergenceResult) {
	if result == nil {
		return
	}

	ui.resultsMutex.Lock()
	ui.results[result.Symbol] = result
	ui.resultsMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile читает JSON-логи zap и форматирует их для панели
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
		if len(ui.logs) > 50 {
			ui.logs = ui.logs[len(ui.logs)-50:]
		}
	}

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
		case "down":
			symbols := sortedSymbols(m.ui.results)
			m.ui.selectedIndex = min(len(symbols)-1, m.ui.selectedIndex+1)
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.resultsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.resultsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("convergd - Derivatives Convergence Monitor")
	scores := renderScoresSection(m.ui.results, m.ui.selectedIndex)
	details := renderDetailsSection(m.ui.results, m.ui.selectedIndex)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			scores,
			"\n",
			details,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderScoresSection(results map[string]*models.ConvergenceResult, selectedIndex int) string {
	header := sectionHeaderStyle.Render("СВОДНЫЙ БАЛЛ")
	content := strings.Builder{}

	symbols := sortedSymbols(results)

	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		for i, symbol := range symbols {
			result := results[symbol]

			line := fmt.Sprintf("  %s: %s %3d  %s  Цена: %.2f",
				symbol,
				formatGrade(result.Grade),
				result.Score,
				formatRecommendation(result.Recommendation),
				result.CurrentPrice)

			if i == selectedIndex {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}

			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderDetailsSection(results map[string]*models.ConvergenceResult, selectedIndex int) string {
	header := sectionHeaderStyle.Render("СИГНАЛЫ ИНСТРУМЕНТА")
	content := strings.Builder{}

	symbols := sortedSymbols(results)
	if selectedIndex >= 0 && selectedIndex < len(symbols) {
		result := results[symbols[selectedIndex]]

		if len(result.AlignedSignals) > 0 {
			content.WriteString("  Согласны:    " +
				lipgloss.NewStyle().Foreground(successColor).Render(strings.Join(result.AlignedSignals, ", ")) + "\n")
		}
		if len(result.ConflictingSignals) > 0 {
			content.WriteString("  Противоречат: " +
				lipgloss.NewStyle().Foreground(errorColor).Render(strings.Join(result.ConflictingSignals, ", ")) + "\n")
		}
		if len(result.Unavailable) > 0 {
			content.WriteString("  Недоступны:  " +
				lipgloss.NewStyle().Foreground(warningColor).Render(strings.Join(result.Unavailable, ", ")) + "\n")
		}
		for _, c := range result.Contributions {
			content.WriteString(fmt.Sprintf("  %-14s %+4d  %s\n", c.Component, c.Points, c.Direction))
		}
	} else {
		content.WriteString("  Нет выбранного инструмента\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 8

	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// Вспомогательные функции
func formatGrade(grade string) string {
	var style lipgloss.Style

	switch grade {
	case "A+":
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case "A":
		style = lipgloss.NewStyle().Foreground(successColor)
	case "B":
		style = lipgloss.NewStyle().Foreground(warningColor)
	default:
		style = lipgloss.NewStyle().Foreground(errorColor)
	}

	return style.Render(fmt.Sprintf("%-2s", grade))
}

func formatRecommendation(recommendation string) string {
	var style lipgloss.Style

	switch recommendation {
	case "high_conviction_long":
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case "moderate_long":
		style = lipgloss.NewStyle().Foreground(successColor)
	case "high_conviction_short":
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case "moderate_short":
		style = lipgloss.NewStyle().Foreground(errorColor)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(recommendation)
}

func sortedSymbols(results map[string]*models.ConvergenceResult) []string {
	symbols := make([]string, 0, len(results))
	for symbol := range results {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
