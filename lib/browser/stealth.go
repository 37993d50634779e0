package browser

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// stealthScript builds the init script injected into every new document. It
// scrubs the fingerprints bank portals are known to probe before letting a
// visitor past login.
func stealthScript(locale string) string {
	languages := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != locale {
		languages = append(languages, base)
	}
	langJSON, _ := json.Marshal(languages)
	return fmt.Sprintf(stealthTemplate, langJSON, languages[0], navigatorPlatform())
}

func navigatorPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "Win32"
	case "darwin":
		return "MacIntel"
	}
	return "Linux x86_64"
}

const stealthTemplate = `(() => {
  const override = (object, property, value) => {
    if (!object) return;
    try {
      Object.defineProperty(object, property, { configurable: true, get: () => value });
    } catch (err) {}
  };
  override(navigator, 'webdriver', undefined);
  override(navigator, 'languages', %s);
  override(navigator, 'language', '%s');
  override(navigator, 'platform', '%s');
  override(navigator, 'maxTouchPoints', 0);
  override(navigator, 'hardwareConcurrency', 8);
  override(navigator, 'deviceMemory', 8);
  override(navigator, 'pdfViewerEnabled', true);
  const plugins = [
    { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
    { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' },
  ];
  override(navigator, 'plugins', Object.assign(plugins, {
    item: (i) => plugins[i],
    namedItem: (name) => plugins.find((p) => p.name === name),
  }));
  if (!window.chrome) {
    window.chrome = { runtime: {}, app: { isInstalled: false } };
  } else if (!window.chrome.runtime) {
    window.chrome.runtime = {};
  }
  if (navigator.permissions && navigator.permissions.query) {
    const query = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = (params) => {
      if (params && params.name === 'notifications') {
        return Promise.resolve({ state: Notification.permission });
      }
      return query(params);
    };
  }
  override(navigator, 'connection', { downlink: 10, effectiveType: '4g', rtt: 45, saveData: false });
})();`
