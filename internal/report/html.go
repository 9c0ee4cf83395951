package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/stellar-oracle/love-oracle/internal/models"
)

const reportTemplate = `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>恋のオラクル 鑑定書 - {{.Reading.Counterpart}}</title>
    <style>
        body { font-family: "Hiragino Mincho ProN", serif; margin: 32px; color: #3b2f4a; background: #fffaf5; }
        .header { border-bottom: 2px solid #7b1fa2; padding-bottom: 12px; }
        .rate { font-size: 2.4em; color: #7b1fa2; }
        .meta { color: #6b5f77; font-size: 0.9em; }
        .warning { background: #fff3cd; padding: 8px 12px; border-radius: 4px; }
        .narrative { white-space: pre-wrap; line-height: 1.8; }
        .previous { background: #f3e5f5; padding: 8px 12px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>恋のオラクル 鑑定書</h1>
        <p class="meta">{{.Reading.GeneratedAt.Format "2006/01/02 15:04"}} | お相手: {{.Reading.Counterpart}} | 鑑定士: {{.Reading.Persona}}</p>
    </div>

    <p class="rate">総合マッチ度 {{.Reading.MatchRate}}%</p>
    <p>会話の温度: {{.TrendLabel}} ({{.Reading.Messages}} 件のメッセージ)</p>

    {{range .Reading.Warnings}}
    <p class="warning">{{.}}</p>
    {{end}}

    {{if .Reading.Previous}}
    <div class="previous">
        前回 ({{.Reading.Previous.CreatedAt.Format "2006/01/02"}}): {{.Reading.Previous.MatchRate}}%{{if .Reading.Previous.Summary}} - {{.Reading.Previous.Summary}}{{end}}
    </div>
    {{end}}

    {{if .Chart}}
    <h2>会話の温度の推移</h2>
    <img alt="engagement chart" src="{{.Chart}}">
    {{end}}

    <h2>鑑定結果</h2>
    <div class="narrative">{{.Reading.Narrative}}</div>

    <hr>
    <p class="meta"><small>この鑑定書は恋のオラクル AI星譚によって自動生成されました。</small></p>
</body>
</html>
`

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

type view struct {
	Reading    *models.Reading
	TrendLabel string
	Chart      template.URL
}

// RenderHTML renders a self-contained report document with the chart inlined
func RenderHTML(reading *models.Reading) ([]byte, error) {
	chart, err := RenderChart(reading.Series)
	if err != nil {
		return nil, err
	}

	v := view{
		Reading:    reading,
		TrendLabel: reading.Trend.Label(),
		Chart:      template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(chart)),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderText renders a plain-text version used for e-mail bodies
func RenderText(reading *models.Reading) string {
	var text strings.Builder

	text.WriteString("恋のオラクル 鑑定書\n")
	text.WriteString(fmt.Sprintf("お相手: %s\n", reading.Counterpart))
	text.WriteString(fmt.Sprintf("日時: %s\n\n", reading.GeneratedAt.Format("2006/01/02 15:04")))
	text.WriteString(fmt.Sprintf("総合マッチ度: %d%%\n", reading.MatchRate))
	text.WriteString(fmt.Sprintf("会話の温度: %s\n", reading.Trend.Label()))
	for _, w := range reading.Warnings {
		text.WriteString(fmt.Sprintf("注意: %s\n", w))
	}
	text.WriteString("\n")
	text.WriteString(reading.Narrative)
	text.WriteString("\n")

	return text.String()
}
