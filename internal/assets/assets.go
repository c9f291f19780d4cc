// Package assets provides embedded static assets for the application: prompt
// templates for the text services, the bilingual status table, and the
// canned texts the offline services return.
package assets

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed status.yaml
var statusTable []byte

// Bilingual is a pair of display strings for one canonical id.
type Bilingual struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

var (
	statusOnce sync.Once
	statusMap  map[string]Bilingual
	statusErr  error
)

// StatusTable returns the parsed status table. The table is parsed once.
func StatusTable() (map[string]Bilingual, error) {
	statusOnce.Do(func() {
		statusMap = make(map[string]Bilingual)
		if err := yaml.Unmarshal(statusTable, &statusMap); err != nil {
			statusErr = fmt.Errorf("invalid embedded status table: %w", err)
		}
	})
	return statusMap, statusErr
}

// MockDescription is returned by the offline vision service. It describes
// the simulation camera's placeholder frame.
var MockDescription = MockAnalysis{
	Description: "照片展示了一個明亮的綠色矩形置於藍色背景上。畫面中有白色文字「Test Image」清晰可見。整體構圖簡單但對比鮮明，色彩飽和度高。這是一張用於測試系統功能的圖像。",
	Story:       "這是一張電腦生成的測試圖像，可能用於開發或調試軟件功能。創建者希望通過這個簡單的圖像來驗證系統能否正確處理和顯示各種顏色和文字元素。",
	Items:       []string{"綠色矩形", "藍色背景", "白色文字", "測試圖像"},
}

// MockAnalysis mirrors the vision service's structured reply.
type MockAnalysis struct {
	Description string
	Story       string
	Items       []string
}

// MockPoem is returned by the offline poem service.
const MockPoem = `《瞬間的永恆》

青綠方塊藏文字，
純白筆觸寫真情。
測試之中有意境，
藍海背景映晴空。
像素間的詩意流淌，
簡單卻蘊含深意。`
