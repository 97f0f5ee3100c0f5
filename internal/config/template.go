package config

// DefaultConfigYAML is the commented template written by 'dxwatch init'.
// DefaultConfigYAML 是 'dxwatch init' 写入的带注释模板。
const DefaultConfigYAML = `# dxwatch configuration

# One entry per cluster server. All sessions run in parallel and their spots
# are merged into the outputs below.
clusters:
  - name: dxspider-main
    host: dxc.example.org
    port: 7300
    # Login identity sent after the login prompt.
    callsign: N0CALL
    # "" detects the flavor from the welcome banner.
    # dxspider | ar-cluster | cc-cluster | rbn
    format: ""
    # Extra login prompt substrings, matched case-insensitively.
    prompts: []
    login_grace: 5s
    dial_timeout: 10s
    # Reconnect when no line arrives for this long.
    stall_timeout: 5m
    backoff_initial: 1s
    backoff_max: 60s
    backoff_multiplier: 2
    # Consecutive failed connects before giving up; 0 retries forever.
    max_attempts: 0
    channel_capacity: 256
    diagnostics: false

# expr-lang expression; empty keeps every spot. Fields: freq, call, spotter,
# comment, time, locator, format, band, cluster. Helpers: contains(s),
# prefix(p), mode(), like(field, "pat*").
# Example: band in ["20m", "40m"] && mode() == "CW"
filter: ""

output:
  # json | text
  format: json
  stdout: true
  file:
    enabled: false
    path: /var/lib/dxwatch/spots.jsonl
    max_size: 50
    max_backups: 5
    max_age: 30
    compress: true

metrics:
  enabled: false
  addr: ":9327"
  # node_exporter textfile collector output.
  textfile_path: ""
  push_gateway: ""
  push_interval: 1m

logging:
  enabled: false
  level: info
  # console | json
  format: console
  path: /var/log/dxwatch/dxwatch.log
  max_size: 10
  max_backups: 3
  max_age: 30
  compress: true

pid_file: ""
`
