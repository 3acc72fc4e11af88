package config

import "os"

// createDefaultConfig creates a default config file
func createDefaultConfig(path string) error {
	defaultConfig := `# Waterworks Configuration
# Keep this file private: it may hold your portal password and API keys.

portal:
  username: ""
  # Leave empty to be prompted at login
  password: ""
  base_url: https://waterlooworks.uwaterloo.ca

browser:
  # The second factor is approved on your phone; a visible window shows progress
  headless: false

defaults:
  folder_name: waterworks
  # full (Full-Cycle Service) or direct (Employer-Student Direct)
  job_board: full

paths:
  cover_letters_dir: ./cover_letters
  data_dir: ~/.waterworks/data

llm:
  # openai, anthropic, gemini, groq, ollama
  provider: openai
  model: ""
  # Falls back to OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY or GROQ_API_KEY
  api_key: ""
  base_url: ""
  timeout: 60s

profile:
  name: ""
  email: ""
  phone: ""
  linkedin: ""
  github: ""
  website: ""
  resume_text: ""
  additional_info: ""
  signature: ""
  cover_letter_template: ""

cover_letter:
  # Optional text/template file with .Company .Title .Description .Profile
  prompt: ""

generation:
  max_attempts: 3
  retry_delay: 2s
  min_description_length: 50
  # pause between provider calls of consecutive jobs
  call_spacing: 500ms

discovery:
  max_pages: 50
  detail_attempts: 2

session:
  approval_timeout: 60s
  poll_interval: 1s
  login_attempts: 2
  call_timeout: 30s

log_level: info
`
	return os.WriteFile(path, []byte(defaultConfig), 0600)
}
