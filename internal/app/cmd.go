package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はカタログ検索とお気に入りAPIを提供するHTTPサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションと孤立エンティティを定期削除するワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの/healthを叩いて終了する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commandDescriptions = map[Command]string{
	CommandServe:       "catalog and favorites API server",
	CommandWorker:      "session and orphan cleanup worker",
	CommandMigrate:     "database schema migration",
	CommandHealthcheck: "container health check",
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	cmd := Command(args[0])
	if _, ok := commandDescriptions[cmd]; !ok {
		return CommandServe
	}
	return cmd
}

// Description は起動ログに出すモードの説明を返す。
func (c Command) Description() string {
	if d, ok := commandDescriptions[c]; ok {
		return d
	}
	return "unknown"
}
