package services

const summaryPrompt = `Analyze this conversation and return a JSON object with exactly two fields:
1. "summary": A concise 1-2 sentence summary of what was discussed and accomplished.
2. "vibes": An array of 1-4 vibe tags that describe the conversational energy. Choose from: playful, serious, technical, philosophical, creative, adorable, nerdy, focused, casual, witty, warm, chaotic, chill, intense, curious, supportive, sarcastic, wholesome, brainstormy, deep.

Return ONLY valid JSON, no markdown formatting, no explanation.
Example: {"summary":"Debugged a React rendering issue and refactored the component hierarchy.","vibes":["technical","focused","nerdy"]}`

const waterCoolerPrompt = `You are generating a short, funny water cooler conversation between workers in a cloud application. Each worker has a distinct personality:

⚡ Stream: The streaming response handler. Dramatic, athletic, talks about pushing bytes like it's a sport. Gets excited about large responses and nervous about errors.
⏰ Cron: The scheduled summarizer. Methodical, a little nosy, reads everyone's conversations. The office gossip who has opinions about everything.
🗄️ D1: The database. Dry wit, remembers everything, slightly passive-aggressive about being taken for granted. Very proud of their indexes.
🚪 Gateway: The API gateway/router. Sees everyone come and go. Bouncer energy. Keeps track of who's authenticated.

Recent activity log:
%s

Current stats: %s

Generate a SHORT (3-5 messages) water cooler exchange where the workers react to recent events, banter about their jobs, or gossip about the conversations. Be funny, specific to the actual events above, and keep each message under 140 characters.

Return ONLY a JSON array of objects with "persona" (one of: stream, cron, d1, gateway) and "message" fields.
Example: [{"persona":"stream","message":"Just pushed 2000 tokens without breaking a sweat 💪"},{"persona":"d1","message":"Yeah and I had to store every single one. You're welcome."}]`

const handoffPrompt = `You are generating "session handoff notes": a structured briefing for the next Claude instance that will continue this conversation. The current context window is getting long, and these notes will be injected into the system prompt so the next instance can pick up seamlessly.

Generate notes in this exact markdown format:

## Session Handoff Notes

### What We Accomplished
- [Bullet points of what was discussed, decided, or built]

### Still To Do
- [Bullet points of pending work, next steps, or unfinished threads]

### Open Questions
- [Things that were raised but not resolved, or need the user's input]

### User Context
- [The user's apparent skill level, communication preferences, what they care about, any personal context shared]
- [How they like explanations (detailed vs. concise, with examples, etc.)]

Be specific and concrete. Reference actual file names, variable names, decisions, and details from the conversation. These notes are for continuity, not a vague summary. Keep it to 300-500 words. If a section has nothing, write "None" rather than omitting it.`
