package exporter

import (
	"fmt"
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

// CEFFeed exports indicators in Common Event Format for SIEM ingestion
type CEFFeed struct{}

func (CEFFeed) ContentType() string { return "text/plain; charset=utf-8" }

// Render generates one CEF line per indicator.
// Format: CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (CEFFeed) Render(views []domain.IndicatorView) ([]byte, error) {
	var out strings.Builder
	for _, v := range feedable(views) {
		out.WriteString(formatCEF(v))
		out.WriteString("\n")
	}
	return []byte(out.String()), nil
}

func formatCEF(v domain.IndicatorView) string {
	vendor := "Hive"
	product := "Actionables"
	version := "1.0"
	signatureID := escapeHeader(v.Type)
	name := escapeHeader(fmt.Sprintf("%s indicator", v.Type))
	severity := calculateSeverity(v.Status.MaxConfidence)

	extensions := []string{
		fmt.Sprintf("%s=%s", cefKey(v.Type), escapeExtension(v.Value)),
		"cs1Label=Subtype",
		fmt.Sprintf("cs1=%s", escapeExtension(v.Subtype)),
		"cs2Label=Tags",
		fmt.Sprintf("cs2=%s", escapeExtension(v.TagCache)),
		"cs3Label=KillChainPhases",
		fmt.Sprintf("cs3=%s", escapeExtension(v.Status.KillChainPhases)),
		"cs4Label=TLP",
		fmt.Sprintf("cs4=%s", v.Status.MostRestrictiveTLP),
		"cs5Label=Confidence",
		fmt.Sprintf("cs5=%s", v.Status.MaxConfidence),
		fmt.Sprintf("externalId=%d", v.ID),
	}

	return fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
		vendor, product, version, signatureID, name, severity, strings.Join(extensions, " "))
}

// cefKey picks the extension key that carries the indicator value.
func cefKey(typeName string) string {
	switch typeName {
	case domain.TypeIPv4:
		return "src"
	case domain.TypeIPv6:
		return "c6a1"
	case domain.TypeFQDN:
		return "dhost"
	case domain.TypeURL:
		return "request"
	case domain.TypeEmail:
		return "suser"
	case domain.TypeMD5, domain.TypeSHA1, domain.TypeSHA256, domain.TypeSHA512:
		return "fileHash"
	}
	return "msg"
}

func calculateSeverity(c domain.Confidence) int {
	// Map confidence to CEF severity (0-10)
	switch c {
	case domain.ConfidenceHigh:
		return 8
	case domain.ConfidenceMedium:
		return 6
	case domain.ConfidenceLow:
		return 4
	}
	return 2
}

func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "|", `\|`)
}

func escapeExtension(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "=", `\=`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}
