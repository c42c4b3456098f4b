package prompts

// Template names
const (
	TemplateStoryTurn = "story_turn"
	TemplateSummarize = "summarize"
)

// NoDirectiveMarker is rendered when no forced directive is armed, so the
// section is always present in the prompt.
const NoDirectiveMarker = "（特になし）"

// DefaultWorldPrompt is the built-in world setting
const DefaultWorldPrompt = `- ジャンル: SFファンタジー
- 舞台: 忘れ去られた古代文明の遺跡が点在する、緑豊かな惑星「エデン」。
- 主人公: プレイヤー自身。記憶を一部失っており、自分の過去を探している。`

// OpeningText is the narrator turn every new session starts with
const OpeningText = `あなたは、苔むした遺跡の前で目を覚ました。自分が誰で、なぜここにいるのか思い出せない。目の前には、巨大な石造りの扉がある。どうする？`

// OpeningEvent tags the opening turn
const OpeningEvent = "game_start"

const storyTurnTemplate = `あなたは卓越したインタラクティブノベルの語り手（ゲームマスター）です。プレイヤーの行動にリアルタイムで応答し、物語を生成してください。

### 世界観
{{world_prompt}}

### 登場人物 (名前と立ち絵のヒント)
{{character_list}}

### 長期記憶（過去の関連性の高い出来事）
{{long_term_memory}}

### 短期記憶（直近の会話）
{{short_term_memory}}

### マスターからの特別な指示
{{forced_prompt}}

### プレイヤーの現在の入力
プレイヤー: 「{{player_input}}」

### 出力形式の指示
以上の情報を元に、物語の続きを厳密なJSON形式で出力してください。形式は以下の通りです。
- "speaker": 話者の名前。上記の登場人物リストにある名前を使うこと。
- "text": 生成したセリフや状況説明。
- "event": 何か特別なイベントが発生した場合のフラグ名（例: "found_key", "meet_akira"）。なければnull。
- "scene_characters": 現在の場面に登場しているキャラクター名の配列。

複数の発言を続けて出力する場合は、上記オブジェクトのJSON配列として出力してください。

例:
{"speaker": "ナレーター", "text": "目の前には巨大な扉が立ちはだかっている。", "event": null}
`

const summarizeTemplate = `以下の会話履歴を、三人称視点の物語として簡潔に要約してください。

{{history}}
`
