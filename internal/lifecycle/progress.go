// SPDX-License-Identifier: MPL-2.0

package lifecycle

import "github.com/charmbracelet/log"

type (
	// Progress receives removal progress. Implementations must be safe to
	// call from any goroutine.
	Progress interface {
		BeforeExtensionsRemoved(n int)
		ExtensionRemoved(name string)
		BeforeActiveScanRulesRemoved(n int)
		ActiveScanRuleRemoved(name string)
		BeforePassiveScanRulesRemoved(n int)
		PassiveScanRuleRemoved(name string)
		BeforeFilesRemoved(n int)
		FileRemoved()
	}

	// NopProgress ignores every notification.
	NopProgress struct{}

	// LogProgress reports progress at debug level.
	LogProgress struct {
		Logger *log.Logger
	}
)

func (NopProgress) BeforeExtensionsRemoved(int)       {}
func (NopProgress) ExtensionRemoved(string)           {}
func (NopProgress) BeforeActiveScanRulesRemoved(int)  {}
func (NopProgress) ActiveScanRuleRemoved(string)      {}
func (NopProgress) BeforePassiveScanRulesRemoved(int) {}
func (NopProgress) PassiveScanRuleRemoved(string)     {}
func (NopProgress) BeforeFilesRemoved(int)            {}
func (NopProgress) FileRemoved()                      {}

func (p LogProgress) BeforeExtensionsRemoved(n int) {
	p.Logger.Debug("removing extensions", "count", n)
}

func (p LogProgress) ExtensionRemoved(name string) {
	p.Logger.Debug("extension removed", "name", name)
}

func (p LogProgress) BeforeActiveScanRulesRemoved(n int) {
	p.Logger.Debug("removing active scan rules", "count", n)
}

func (p LogProgress) ActiveScanRuleRemoved(name string) {
	p.Logger.Debug("active scan rule removed", "name", name)
}

func (p LogProgress) BeforePassiveScanRulesRemoved(n int) {
	p.Logger.Debug("removing passive scan rules", "count", n)
}

func (p LogProgress) PassiveScanRuleRemoved(name string) {
	p.Logger.Debug("passive scan rule removed", "name", name)
}

func (p LogProgress) BeforeFilesRemoved(n int) {
	p.Logger.Debug("removing files", "count", n)
}

func (p LogProgress) FileRemoved() {}
