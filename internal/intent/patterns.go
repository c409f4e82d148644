package intent

// Intent is a closed-vocabulary classification label for user input.
type Intent string

const (
	IntentUnknown Intent = "unknown"

	IntentCheckCalendar    Intent = "checkCalendar"
	IntentAddCalendarEvent Intent = "addCalendarEvent"
	IntentCancelEvent      Intent = "cancelEvent"
	IntentCheckBalance     Intent = "checkBalance"
	IntentPayBill          Intent = "payBill"
	IntentTransferMoney    Intent = "transferMoney"
	IntentCheckMail        Intent = "checkMail"
	IntentComposeMail      Intent = "composeMail"
	IntentCheckWeather     Intent = "checkWeather"
	IntentSetReminder      Intent = "setReminder"
	IntentSetAlarm         Intent = "setAlarm"
	IntentSetTimer         Intent = "setTimer"
	IntentPlayMusic        Intent = "playMusic"
	IntentMakeCall         Intent = "makeCall"
	IntentSendMessage      Intent = "sendMessage"
	IntentCheckNews        Intent = "checkNews"
	IntentNavigate         Intent = "navigate"
	IntentFindPlace        Intent = "findPlace"
	IntentOrderFood        Intent = "orderFood"
	IntentTrackPackage     Intent = "trackPackage"
	IntentShoppingList     Intent = "shoppingList"
	IntentCheckTasks       Intent = "checkTasks"
	IntentCompleteTask     Intent = "completeTask"
	IntentCheckTraffic     Intent = "checkTraffic"
	IntentAskTime          Intent = "askTime"
	IntentAskDate          Intent = "askDate"
	IntentTranslate        Intent = "translate"
	IntentDefineWord       Intent = "defineWord"
	IntentConvertUnits     Intent = "convertUnits"
	IntentGreeting         Intent = "greeting"
	IntentThanks           Intent = "thanks"
)

type patternEntry struct {
	intent  Intent
	phrases []string
}

// patternTable is evaluated top to bottom in a fixed order; when two
// entries score the same the earlier one wins. Phrases are lowercase
// because input is normalized before matching.
var patternTable = []patternEntry{
	{IntentCheckCalendar, []string{"what's on my calendar", "check my calendar", "my schedule", "upcoming events", "do i have any meetings", "what does my day look like"}},
	{IntentAddCalendarEvent, []string{"add to my calendar", "schedule a meeting", "create an event", "put it on my calendar", "book an appointment"}},
	{IntentCancelEvent, []string{"cancel my meeting", "cancel the appointment", "remove the event", "clear my schedule"}},
	{IntentCheckBalance, []string{"balance", "how much money do i have", "check my account", "account balance", "how much is in my checking"}},
	{IntentPayBill, []string{"pay my bill", "pay the electricity", "pay rent", "settle the invoice", "make a payment"}},
	{IntentTransferMoney, []string{"transfer money", "send money to", "wire money", "move money between accounts"}},
	{IntentCheckMail, []string{"check my email", "any new mail", "unread emails", "did i get an email", "check my inbox"}},
	{IntentComposeMail, []string{"write an email", "send an email to", "compose a message to", "draft an email"}},
	{IntentCheckWeather, []string{"what's the weather", "weather today", "is it going to rain", "weather forecast", "how cold is it"}},
	{IntentSetReminder, []string{"remind me to", "set a reminder", "don't let me forget"}},
	{IntentSetAlarm, []string{"set an alarm", "wake me up at", "alarm for"}},
	{IntentSetTimer, []string{"set a timer", "start a timer", "countdown for"}},
	{IntentPlayMusic, []string{"play some music", "play a song", "put on music", "play my playlist"}},
	{IntentMakeCall, []string{"call mom", "make a call", "call back", "dial", "phone"}},
	{IntentSendMessage, []string{"send a message", "text", "message him", "message her"}},
	{IntentCheckNews, []string{"what's in the news", "news headlines", "latest news", "what's happening in the world"}},
	{IntentNavigate, []string{"navigate to", "directions to", "take me to", "how do i get to"}},
	{IntentFindPlace, []string{"find a restaurant", "nearest coffee shop", "places near me", "where is the closest"}},
	{IntentOrderFood, []string{"order food", "order a pizza", "get me dinner", "order groceries"}},
	{IntentTrackPackage, []string{"track my package", "where is my order", "delivery status", "when will my package arrive"}},
	{IntentShoppingList, []string{"add to my shopping list", "shopping list", "put milk on the list"}},
	{IntentCheckTasks, []string{"what's on my todo", "my tasks", "pending tasks", "what do i need to do today"}},
	{IntentCompleteTask, []string{"mark it done", "complete the task", "check that off", "finished that task"}},
	{IntentCheckTraffic, []string{"how's traffic", "traffic on the way", "is the highway busy"}},
	{IntentAskTime, []string{"what time is it", "current time", "tell me the time"}},
	{IntentAskDate, []string{"what's the date", "what day is it", "today's date"}},
	{IntentTranslate, []string{"translate", "how do you say", "in spanish", "in french"}},
	{IntentDefineWord, []string{"define", "what does", "meaning of", "definition of"}},
	{IntentConvertUnits, []string{"convert", "how many miles", "how many kilograms", "in fahrenheit", "in celsius"}},
	{IntentGreeting, []string{"hello", "good morning", "good evening", "hey there"}},
	{IntentThanks, []string{"thank you", "thanks a lot", "much appreciated"}},
}
