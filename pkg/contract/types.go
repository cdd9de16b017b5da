package contract

// FileID: 逻辑输入流 ID（通常为路径，需规范化，跨平台一致；STDIN 为 "stdin"）。
type FileID string

// StdinID: STDIN 输入流的固定 FileID。
const StdinID FileID = "stdin"
